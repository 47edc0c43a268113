// Package operations runs the ETL jobs.
//
// A Runner executes one dataset job: extract the input file, apply the
// dataset's transforms in order and load the result to a timestamped file
// under the processed directory. Every failure is contained in the job and
// reported through its JobResult; RunJob never panics outward.
//
// An Orchestrator submits one job per dataset to a bounded worker pool and
// collects the results in completion order:
//
//	runner := operations.NewRunner(extractor, loader, paths)
//	orch := operations.NewOrchestrator(runner, datasetLoggers, operations.WithWorkers(4))
//	entries, err := orch.RunAll(ctx, catalog)
//	fmt.Print(operations.FormatSummary(entries))
//
// Job lifecycle:
//
//	pending -> extracting -> transforming -> loading -> succeeded
//	                  \______________\____________\___-> failed
//
// Failures carry a *PipelineError whose Type tells extraction, transform,
// load and unexpected errors apart.
package operations
