// Package reconcile wires the ledger components into the three-step
// reconciliation job and runs it.
//
// The job imports a transaction file into the store, applies the imported
// transactions to the balances of the accounts they reference, and exports
// those balances to a summary file. Service runs jobs synchronously or in the
// background, bounds how many run at once and lets operators stop a run.
package reconcile

import (
	"github.com/JonMunkholm/reconcile/internal/batch"
	"github.com/JonMunkholm/reconcile/internal/config"
	"github.com/JonMunkholm/reconcile/internal/flatfile"
	"github.com/JonMunkholm/reconcile/internal/ledger"
)

// JobName identifies the reconciliation job in the execution repository.
const JobName = "reconcileLedger"

// Step names.
const (
	StepImport = "importTransactions"
	StepApply  = "applyTransactions"
	StepExport = "exportSummaries"
)

// Job parameter keys.
const (
	ParamTransactionFile = "transactionFile"
	ParamSummaryFile     = "summaryFile"
)

// JobOptions tune the steps of a job.
type JobOptions struct {
	ChunkSize     int
	Delimiter     rune
	RequireFooter bool

	// Truncate clears stored transactions before the import.
	Truncate bool
}

// JobOptionsFrom derives job options from the batch configuration.
func JobOptionsFrom(cfg config.BatchConfig) JobOptions {
	return JobOptions{
		ChunkSize:     cfg.ChunkSize,
		Delimiter:     cfg.DelimiterRune(),
		RequireFooter: cfg.RequireFooter,
		Truncate:      cfg.Truncate(),
	}
}

// Parameters converts job parameters into the identifying batch parameters.
func Parameters(p config.JobParameters) batch.Parameters {
	return batch.Parameters{
		ParamTransactionFile: p.TransactionFile,
		ParamSummaryFile:     p.SummaryFile,
	}
}

// NewJob builds the reconciliation job for one run. Steps hold per-run
// reader state, so every run needs its own Job.
//
// The import step may run again in a job instance where it already
// completed; its inserts are idempotent. The apply step adds transaction sums
// to balances and therefore runs at most once per instance.
func NewJob(store ledger.Store, repo batch.Repository, params config.JobParameters, opts JobOptions) *batch.Job {
	decoder := ledger.NewTransactionDecoder(
		flatfile.NewReader(flatfile.FileOpener(params.TransactionFile), opts.Delimiter, params.TransactionFile),
	)
	decoder.RequireFooter = opts.RequireFooter

	importStep := &batch.ChunkStep[ledger.Transaction, ledger.Transaction]{
		StepName:     StepImport,
		ChunkSize:    opts.ChunkSize,
		AllowRestart: true,
		Reader:       decoder,
		Writer:       &ledger.TransactionWriter{Store: store, Truncate: opts.Truncate},
	}

	applyStep := &batch.ChunkStep[ledger.AccountSummary, ledger.AccountSummary]{
		StepName:  StepApply,
		ChunkSize: opts.ChunkSize,
		Reader:    ledger.NewSummaryReader(store, opts.ChunkSize),
		Processor: &ledger.BalanceAccumulator{Transactions: store},
		Writer:    &ledger.SummaryWriter{Store: store},
	}

	exportStep := &batch.ChunkStep[ledger.AccountSummary, ledger.AccountSummary]{
		StepName:  StepExport,
		ChunkSize: opts.ChunkSize,
		Reader:    ledger.NewSummaryReader(store, opts.ChunkSize),
		Writer: flatfile.NewWriter[ledger.AccountSummary](
			flatfile.FileCreator(params.SummaryFile),
			opts.Delimiter,
			ledger.SummaryLine,
			params.SummaryFile,
		),
	}

	return &batch.Job{
		Name:       JobName,
		Steps:      []batch.Step{importStep, applyStep, exportStep},
		Repository: repo,
	}
}
