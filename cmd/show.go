package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/CS-5/VoiceTimeBot/ledger"
)

var errReadOnly = errors.New("totals opened read-only")

type (
	showEntry struct {
		Rank    int     `json:"rank" toml:"rank"`
		UserID  string  `json:"user_id" toml:"user_id"`
		Seconds float64 `json:"seconds" toml:"seconds"`
		Hours   float64 `json:"hours" toml:"hours"`
	}

	showReport struct {
		File  string      `json:"file" toml:"file"`
		Users []showEntry `json:"users" toml:"users"`
	}

	// staticStore serves totals already read from disk.
	staticStore map[string]float64
)

func (s staticStore) Load() (map[string]float64, error) { return s, nil }

func (staticStore) Save(map[string]float64) error { return errReadOnly }

func newShowCmd() *cobra.Command {
	var (
		file   string
		top    int
		format string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the stored totals without connecting to Discord",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "text" && format != "json" && format != "toml" {
				return fmt.Errorf("unsupported format %q, want text, json or toml", format)
			}

			store := ledger.NewFileStore(file)
			totals, err := store.Load()
			if err != nil {
				return err
			}

			report := buildReport(store.Path(), totals, top)
			return writeReport(cmd.OutOrStdout(), report, format)
		},
	}

	cmd.Flags().StringVar(&file, "file", ledger.DefaultFile, "Voice time file")
	cmd.Flags().IntVar(&top, "top", 0, "Only list the n users with the most time (0 lists everyone)")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text, json or toml")

	return cmd
}

func buildReport(path string, totals map[string]float64, top int) showReport {
	l := ledger.New(staticStore(totals))
	report := showReport{File: path, Users: []showEntry{}}
	for idx, e := range l.Top(top, time.Now()) {
		report.Users = append(report.Users, showEntry{
			Rank:    idx + 1,
			UserID:  e.UserID,
			Seconds: e.Total.Seconds(),
			Hours:   e.Total.Hours(),
		})
	}
	return report
}

func writeReport(w io.Writer, report showReport, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "toml":
		data, err := toml.Marshal(report)
		if err != nil {
			return fmt.Errorf("encode toml: %w", err)
		}
		_, err = w.Write(data)
		return err
	}

	if len(report.Users) == 0 {
		_, err := fmt.Fprintf(w, "No voice time recorded in %s\n", report.File)
		return err
	}
	if _, err := fmt.Fprintf(w, "users: %d\n", len(report.Users)); err != nil {
		return err
	}
	for _, e := range report.Users {
		d := time.Duration(e.Seconds * float64(time.Second)).Truncate(time.Second)
		if _, err := fmt.Fprintf(w, "%3d. %-20s %10.1fh  (%s)\n", e.Rank, e.UserID, e.Hours, d); err != nil {
			return err
		}
	}
	return nil
}
