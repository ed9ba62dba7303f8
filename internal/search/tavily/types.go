package tavily

// searchRequest is the request body for the Tavily Search API.
type searchRequest struct {
	Query             string `json:"query"`
	SearchDepth       string `json:"search_depth,omitempty"`
	MaxResults        int    `json:"max_results,omitempty"`
	IncludeAnswer     bool   `json:"include_answer"`
	IncludeRawContent bool   `json:"include_raw_content"`
}

// searchResponse is the response body from the Tavily Search API.
type searchResponse struct {
	Query        string         `json:"query"`
	Results      []searchResult `json:"results"`
	ResponseTime float64        `json:"response_time"`
}

// searchResult is a single result in a Tavily search response.
type searchResult struct {
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Content    string  `json:"content"`
	RawContent string  `json:"raw_content,omitempty"`
	Score      float64 `json:"score"`
}

// errorResponse is the error body returned by the Tavily API.
type errorResponse struct {
	Detail string `json:"detail"`
	Error  string `json:"error"`
}
