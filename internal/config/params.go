package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// JobParameters identify one job instance: the file it imports and the file
// it exports to.
type JobParameters struct {
	TransactionFile string `yaml:"transactionFile" json:"transactionFile"`
	SummaryFile     string `yaml:"summaryFile" json:"summaryFile"`
}

// Validate reports missing parameters.
func (p JobParameters) Validate() error {
	var errs []error
	if strings.TrimSpace(p.TransactionFile) == "" {
		errs = append(errs, errors.New("transactionFile is required"))
	}
	if strings.TrimSpace(p.SummaryFile) == "" {
		errs = append(errs, errors.New("summaryFile is required"))
	}
	return errors.Join(errs...)
}

// LoadParameters reads job parameters from a YAML file:
//
//	transactionFile: data/transactions.csv
//	summaryFile: out/summary.csv
//
// Unknown keys are rejected so a misspelled parameter does not silently
// create a new job instance.
func LoadParameters(path string) (JobParameters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return JobParameters{}, fmt.Errorf("read parameter file: %w", err)
	}

	var p JobParameters
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return JobParameters{}, fmt.Errorf("parse parameter file %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return JobParameters{}, fmt.Errorf("parameter file %s: %w", path, err)
	}
	return p, nil
}
