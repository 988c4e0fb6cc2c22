package cli

import (
	"fmt"

	"github.com/CrispStrobe/filen-cli/internal/api"
	"github.com/CrispStrobe/filen-cli/internal/batch"
	"github.com/CrispStrobe/filen-cli/internal/config"
	"github.com/CrispStrobe/filen-cli/internal/drive"
)

// openAPI builds a wire client from settings, without credentials.
func openAPI() (*api.Client, *config.Settings, error) {
	settings, err := config.LoadSettings()
	if err != nil {
		return nil, nil, err
	}
	return api.NewClient(settings, "", GetLogger()), settings, nil
}

// openDrive builds the full drive client from the saved session.
func openDrive() (*drive.Drive, error) {
	settings, err := config.LoadSettings()
	if err != nil {
		return nil, err
	}
	creds, err := config.LoadCredentials()
	if err != nil {
		return nil, fmt.Errorf("%w (run: filen login)", err)
	}
	client := api.NewClient(settings, creds.APIKey, GetLogger())
	return drive.New(client, creds, GetLogger()), nil
}

// openRunner builds a batch runner from the shared transfer flags.
func openRunner(onConflict string, recursive, noProgress, preserveTimestamps bool, include, exclude []string) (*batch.Runner, error) {
	d, err := openDrive()
	if err != nil {
		return nil, err
	}
	runner := batch.NewRunner(d, GetLogger())

	if force {
		onConflict = string(batch.PolicyOverwrite)
	}
	policy, err := batch.ParsePolicy(onConflict)
	if err != nil {
		return nil, err
	}
	runner.Policy = policy

	filter, err := batch.NewFilter(include, exclude)
	if err != nil {
		return nil, err
	}
	runner.Filter = filter
	runner.Recursive = recursive
	runner.PreserveTimestamps = preserveTimestamps
	runner.ShowProgress(!noProgress)
	return runner, nil
}

// printBatchResult prints the per-status tally and returns an error
// when the batch kept its state file for a retry.
func printBatchResult(state *batch.State) error {
	summary := state.Summary()
	for _, status := range []batch.Status{
		batch.StatusCompleted, batch.StatusSkippedConflict, batch.StatusSkippedNewer,
		batch.StatusSkippedMissing, batch.StatusInterrupted, batch.StatusErrorParent,
		batch.StatusErrorUpload, batch.StatusErrorDownload,
	} {
		if count := summary[status]; count > 0 {
			fmt.Printf("  %-17s %d\n", status, count)
		}
	}
	if state.HasErrors() {
		return fmt.Errorf("batch %s completed with errors; rerun the same command to resume", state.ID)
	}
	return nil
}
