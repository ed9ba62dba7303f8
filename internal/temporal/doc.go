// Package temporal provides Temporal workflow client integration for the
// research report service.
//
// This package handles workflow client initialization, workflow/activity
// registration, and worker lifecycle management.
//
// # Overview
//
// The temporal package provides:
//
//   - Client: Temporal client wrapper for starting/managing run workflows
//   - Worker: Worker process for executing workflows and activities
//   - Workflow definitions for the report pipeline orchestration
//   - Activity implementations for the pipeline stages
//
// # Client Setup
//
// Create a Temporal client:
//
//	cfg := temporal.ClientConfig{
//	    HostPort:  "localhost:7233",
//	    Namespace: "research-report",
//	    TaskQueue: "research-report-tasks",
//	}
//
//	client, err := temporal.NewClient(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
// # Starting Workflows
//
// Start a research report workflow:
//
//	runClient := temporal.NewRunWorkflowClient(client, cfg.TaskQueue)
//	workflowID, runID, err := runClient.StartResearchWorkflow(ctx,
//	    workflows.ResearchReportWorkflow, temporal.ResearchWorkflowInput{
//	        RunID:  run.ID,
//	        Topic:  run.Topic,
//	        Config: run.Configuration,
//	    })
//
// # Worker Setup
//
// Create and start a worker:
//
//	manager, err := temporal.NewWorkerManager(client, temporal.DefaultWorkerConfig(taskQueue))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	manager.RegisterWorkflow(workflows.ResearchReportWorkflow)
//	manager.RegisterWorkflow(workflows.SectionResearchWorkflow)
//	manager.RegisterActivity(pipelineActivities)
//	manager.RegisterActivity(statusActivities)
//
//	if err := manager.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Workflow Types
//
// The package defines two workflow types:
//
//   - ResearchReportWorkflow: coordinator driving planning, research, and report
//   - SectionResearchWorkflow: child workflow researching a single section
//
// # Activity Types
//
// Activities are grouped by responsibility:
//
//   - Pipeline activities: planning, section research, report composition
//   - Status activities: run status transitions and artifact persistence
//   - Event activities: run lifecycle event publication
//
// # Error Handling
//
// Workflows use standard Temporal error handling:
//
//	if temporal.IsWorkflowNotFound(err) {
//	    // Workflow doesn't exist or already completed
//	}
//
//	if temporal.IsWorkflowAlreadyStarted(err) {
//	    // Workflow with same ID is already running
//	}
//
// # Thread Safety
//
// The Temporal client is safe for concurrent use. Workers manage their
// own goroutines for activity execution.
package temporal
