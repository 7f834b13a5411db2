package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/zombar/litmatrix/internal/export"
	"github.com/zombar/litmatrix/internal/models"
	"github.com/zombar/litmatrix/internal/session"
)

func newAnalyzeCmd(a *app) *cobra.Command {
	var (
		caseFile     string
		claimsFile   string
		evidence     []string
		jurisdiction string
		location     string
		focus        []string
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run an analysis and store the report",
		Long: `Reads the case facts and claims from files and requests a report.
Evidence is given as name=purpose pairs; without --evidence the saved draft's evidence is used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			caseInfo, err := readText(caseFile)
			if err != nil {
				return err
			}
			claims, err := readText(claimsFile)
			if err != nil {
				return err
			}

			in := models.CaseInput{
				CaseInfo:     caseInfo,
				Claims:       claims,
				Jurisdiction: jurisdiction,
				Location:     location,
				Focus:        focus,
			}
			if len(evidence) > 0 {
				items, err := parseEvidence(evidence)
				if err != nil {
					return err
				}
				in.Evidence = items
			}

			return a.withController(func(c *session.Controller) error {
				printInfo(a.out, "Analyzing case with %d evidence item(s)...", len(in.Evidence))
				result, err := c.SubmitAnalysis(cmd.Context(), in)
				if err != nil {
					return userError(err)
				}
				printAnalysisSummary(a, result)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&caseFile, "case", "", "File with the case facts")
	cmd.Flags().StringVar(&claimsFile, "claims", "", "File with the claims")
	cmd.Flags().StringArrayVarP(&evidence, "evidence", "e", nil, "Evidence as name=purpose, repeatable")
	cmd.Flags().StringVar(&jurisdiction, "jurisdiction", "", "Jurisdiction, e.g. PRC civil")
	cmd.Flags().StringVar(&location, "location", "", "Court location")
	cmd.Flags().StringSliceVar(&focus, "focus", nil, "Strategy focus tags")
	cmd.MarkFlagRequired("case")
	cmd.MarkFlagRequired("claims")
	return cmd
}

func printAnalysisSummary(a *app, r *models.AnalysisResult) {
	printSuccess(a.out, "Analysis complete")
	if r.Strategy != "" {
		printInfo(a.out, "Strategy: %s", r.Strategy)
	}
	printInfo(a.out, "Evidence assessed: %d, reinforcement points: %d, risks: %d, comparable cases: %d",
		len(r.EvidenceList), len(r.Reinforcement), len(r.Risks), len(r.CaseLaw))
	printInfo(a.out, "Run `litmatrix report` to read the full report.")
}

// parseEvidence reads name=purpose pairs; the purpose may be empty
func parseEvidence(args []string) ([]models.EvidenceItem, error) {
	items := make([]models.EvidenceItem, 0, len(args))
	for _, arg := range args {
		name, purpose, _ := strings.Cut(arg, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("invalid evidence %q: expected name=purpose", arg)
		}
		items = append(items, models.EvidenceItem{
			Name:        name,
			ProvedFact:  strings.TrimSpace(purpose),
			Reliability: models.ReliabilityMedium,
		})
	}
	return items, nil
}

func readText(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

func newReportCmd(a *app) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show the current report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withController(func(c *session.Controller) error {
				md, err := c.MarkdownReport()
				if err != nil {
					return userError(err)
				}
				if raw {
					fmt.Fprint(a.out, md)
					return nil
				}

				renderer, err := glamour.NewTermRenderer(
					glamour.WithAutoStyle(),
					glamour.WithWordWrap(100),
				)
				if err != nil {
					return fmt.Errorf("failed to create renderer: %w", err)
				}
				out, err := renderer.Render(md)
				if err != nil {
					return fmt.Errorf("failed to render report: %w", err)
				}
				fmt.Fprint(a.out, out)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&raw, "markdown", false, "Print raw Markdown instead of rendering it")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var (
		format string
		outDir string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the current report as png or pdf",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withController(func(c *session.Controller) error {
				file, err := c.Export(cmd.Context(), format)
				if err != nil {
					return userError(err)
				}
				if err := os.MkdirAll(outDir, 0o755); err != nil {
					return fmt.Errorf("failed to create output directory: %w", err)
				}
				path := filepath.Join(outDir, file.Name)
				if err := os.WriteFile(path, file.Data, 0o644); err != nil {
					return fmt.Errorf("failed to write export: %w", err)
				}
				printSuccess(a.out, "Saved %s", path)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", export.FormatPDF, "png or pdf")
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "Output directory")
	return cmd
}

func newBragCmd(a *app) *cobra.Command {
	var (
		style   string
		replyTo string
	)

	cmd := &cobra.Command{
		Use:   "brag",
		Short: "Generate five social one-liners",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withController(func(c *session.Controller) error {
				lines, err := c.GenerateBragging(cmd.Context(), models.BraggingRequest{
					Style:   models.BraggingStyle(style),
					Context: replyTo,
				})
				if err != nil {
					return userError(err)
				}
				for i, line := range lines {
					fmt.Fprintf(a.out, "%d. %s\n", i+1, line)
				}
				return nil
			})
		},
	}

	names := make([]string, len(models.BraggingStyles))
	for i, s := range models.BraggingStyles {
		names[i] = string(s)
	}
	cmd.Flags().StringVarP(&style, "style", "s", string(models.StyleRandom), "One of: "+strings.Join(names, ", "))
	cmd.Flags().StringVar(&replyTo, "context", "", "Message being replied to, for reply-to")
	return cmd
}

func newKeyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the API key",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set KEY",
		Short: "Store an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.TrimSpace(args[0])
			if key == "" {
				return fmt.Errorf("key must not be empty")
			}
			return a.withController(func(c *session.Controller) error {
				c.SetCredential(key)
				printSuccess(a.out, "Saved API key %s", maskKey(key))
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove the stored API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withController(func(c *session.Controller) error {
				c.SetCredential("")
				printSuccess(a.out, "API key removed")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show where the API key comes from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withController(func(c *session.Controller) error {
				s := c.Settings()
				if !s.HasCredential {
					printWarning(a.out, "No API key configured. Run `litmatrix key set KEY`.")
					return nil
				}
				printInfo(a.out, "API key source: %s", s.CredentialSource)
				return nil
			})
		},
	})
	return cmd
}

func newDraftCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Inspect the saved draft",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the saved case facts, claims and evidence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withController(func(c *session.Controller) error {
				d := c.Draft()
				printTitle(a.out, "Case facts")
				fmt.Fprintln(a.out, orNone(d.CaseInfo))
				printTitle(a.out, "Claims")
				fmt.Fprintln(a.out, orNone(d.Claims))
				printTitle(a.out, "Evidence")
				if len(d.Evidence) == 0 {
					fmt.Fprintln(a.out, "(none)")
				}
				for i, e := range d.Evidence {
					fmt.Fprintf(a.out, "%d. %s [%s] %s\n", i+1, e.Name, e.Reliability, orNone(e.ProvedFact))
				}
				return nil
			})
		},
	})
	return cmd
}

func newResetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Forget the draft, report, key and settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withController(func(c *session.Controller) error {
				c.ResetSession()
				printSuccess(a.out, "Session reset")
				return nil
			})
		},
	}
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}
