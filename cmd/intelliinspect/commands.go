package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/vsharma-va/ABB-Final/internal/config"
	"github.com/vsharma-va/ABB-Final/internal/simulation"
)

type metadataResponse struct {
	TotalRecords    int       `json:"total_records"`
	TotalColumns    int       `json:"total_columns"`
	PassRatePercent float64   `json:"pass_rate_percent"`
	Earliest        time.Time `json:"earliest_timestamp"`
	Latest          time.Time `json:"latest_timestamp"`
}

type datasetResponse struct {
	ID               string           `json:"dataset_id"`
	OriginalFileName string           `json:"original_file_name"`
	CreatedAt        time.Time        `json:"created_at"`
	Metadata         metadataResponse `json:"metadata"`
}

type metricsResponse struct {
	Error     *string   `json:"error"`
	Accuracy  float64   `json:"accuracy"`
	Precision float64   `json:"precision"`
	Recall    float64   `json:"recall"`
	F1        float64   `json:"f1"`
	Matrix    [2][2]int `json:"matrix"`
	Graph     []float64 `json:"graph"`
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printDataset(d datasetResponse) {
	fmt.Printf("%s  %s\n", colorize(colorCyan, d.ID), d.OriginalFileName)
	fmt.Printf("  records: %d  columns: %d  pass rate: %.2f%%\n",
		d.Metadata.TotalRecords, d.Metadata.TotalColumns, d.Metadata.PassRatePercent)
	fmt.Printf("  range:   %s .. %s\n",
		d.Metadata.Earliest.Format(time.DateTime), d.Metadata.Latest.Format(time.DateTime))
}

// --- dataset ---

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Upload and inspect datasets",
}

var datasetUploadCmd = &cobra.Command{
	Use:   "upload <file.csv>",
	Short: "Upload a CSV dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening dataset: %w", err)
		}
		defer f.Close()

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Uploading %s", filepath.Base(args[0]))
		resp, err := client.upload(cmd.Context(), "/datasets", filepath.Base(args[0]), f)
		if err != nil {
			return err
		}

		var d datasetResponse
		if err := decodeJSON(resp, &d); err != nil {
			return err
		}
		printSuccess("Stored dataset %s", d.ID)
		printDataset(d)
		return nil
	},
}

var datasetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploaded datasets",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/datasets?limit=%d", limit))
		if err != nil {
			return err
		}

		var list []datasetResponse
		if err := decodeJSON(resp, &list); err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No datasets found.")
			return nil
		}
		for _, d := range list {
			fmt.Printf("%s  %s  %-30s %6d rows  %6.2f%% pass\n",
				colorize(colorCyan, d.ID),
				d.CreatedAt.Local().Format(time.DateTime),
				truncate(d.OriginalFileName, 30),
				d.Metadata.TotalRecords,
				d.Metadata.PassRatePercent,
			)
		}
		return nil
	},
}

var datasetShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a dataset's metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/datasets/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var d datasetResponse
		if err := decodeJSON(resp, &d); err != nil {
			return err
		}
		printDataset(d)
		return nil
	},
}

var datasetValidateCmd = &cobra.Command{
	Use:   "validate <id>",
	Short: "Check training, testing and simulation windows against a dataset",
	Long: `Check training, testing and simulation windows against a dataset.

Example:
  intelliinspect dataset validate 3f2a... \
    --train "2021-01-01 00:00:00,2021-01-10 23:59:59" \
    --test "2021-01-11 00:00:00,2021-01-15 23:59:59" \
    --simulate "2021-01-16 00:00:00,2021-01-20 23:59:59"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]any{}
		for _, f := range [][2]string{{"train", "training"}, {"test", "testing"}, {"simulate", "simulation"}} {
			v, _ := cmd.Flags().GetString(f[0])
			start, end, err := splitWindow(v)
			if err != nil {
				return fmt.Errorf("--%s: %w", f[0], err)
			}
			body[f[1]] = map[string]string{"start": start, "end": end}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/datasets/"+url.PathEscape(args[0])+"/validate-ranges", body)
		if err != nil {
			return err
		}

		var report struct {
			Valid   bool     `json:"valid"`
			Errors  []string `json:"errors"`
			Summary []struct {
				Name        string `json:"name"`
				Days        int    `json:"days"`
				RecordCount int    `json:"record_count"`
			} `json:"summary"`
		}
		if err := decodeJSON(resp, &report); err != nil {
			return err
		}
		for _, s := range report.Summary {
			printStatus(s.Name, "%d records over %d days", s.RecordCount, s.Days)
		}
		if !report.Valid {
			for _, e := range report.Errors {
				printError("%s", e)
			}
			return fmt.Errorf("date ranges are not valid")
		}
		printSuccess("Date ranges validated")
		return nil
	},
}

func init() {
	datasetListCmd.Flags().Int("limit", 20, "maximum number of datasets to list")
	datasetValidateCmd.Flags().String("train", "", "training window as \"start,end\"")
	datasetValidateCmd.Flags().String("test", "", "test window as \"start,end\"")
	datasetValidateCmd.Flags().String("simulate", "", "simulation window as \"start,end\"")
	datasetCmd.AddCommand(datasetUploadCmd, datasetListCmd, datasetShowCmd, datasetValidateCmd)
}

// --- train ---

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the classifier on a dataset",
	Long: `Train the classifier on a dataset.

Examples:
  intelliinspect train --dataset 3f2a... --train "2021-01-01,2021-01-10 23:59:59" --test "2021-01-11,2021-01-15 23:59:59"
  intelliinspect train --file bosch.csv --train ... --test ...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		datasetID, _ := cmd.Flags().GetString("dataset")
		fileName, _ := cmd.Flags().GetString("file")
		model, _ := cmd.Flags().GetString("model")
		trainWin, _ := cmd.Flags().GetString("train")
		testWin, _ := cmd.Flags().GetString("test")

		if (datasetID == "") == (fileName == "") {
			return fmt.Errorf("exactly one of --dataset or --file is required")
		}
		trainStart, trainEnd, err := splitWindow(trainWin)
		if err != nil {
			return fmt.Errorf("--train: %w", err)
		}
		testStart, testEnd, err := splitWindow(testWin)
		if err != nil {
			return fmt.Errorf("--test: %w", err)
		}

		req := map[string]any{
			"train_start": trainStart,
			"train_end":   trainEnd,
			"test_start":  testStart,
			"test_end":    testEnd,
			"model_name":  model,
		}
		if datasetID != "" {
			req["dataset_id"] = datasetID
		} else {
			req["file_name"] = fileName
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Training %s model", model)
		resp, err := client.post(cmd.Context(), "/train-model", req)
		if err != nil {
			return err
		}

		var m metricsResponse
		if err := decodeJSON(resp, &m); err != nil {
			return err
		}
		printSuccess("Model trained")
		writeMetrics(os.Stdout, m)
		return nil
	},
}

func init() {
	trainCmd.Flags().String("dataset", "", "uploaded dataset id")
	trainCmd.Flags().String("file", "", "CSV file name under <data_dir>/data")
	trainCmd.Flags().String("model", "xgboost", "model kind")
	trainCmd.Flags().String("train", "", "training window as \"start,end\"")
	trainCmd.Flags().String("test", "", "test window as \"start,end\"")
	trainCmd.MarkFlagRequired("train")
	trainCmd.MarkFlagRequired("test")
}

// --- metrics ---

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show evaluation metrics of the trained model",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/model/metrics")
		if err != nil {
			return err
		}

		var m metricsResponse
		if err := decodeJSON(resp, &m); err != nil {
			return err
		}
		if asJSON {
			return printJSON(m)
		}
		writeMetrics(os.Stdout, m)
		return nil
	},
}

func init() {
	metricsCmd.Flags().Bool("json", false, "print raw JSON")
}

// --- simulate ---

var simulateCmd = &cobra.Command{
	Use:   "simulate <start> <end>",
	Short: "Replay a time window through the trained model",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		q.Set("sim_start", args[0])
		q.Set("sim_end", args[1])

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var total, fail int
		var streamErr string
		err = client.stream(cmd.Context(), "/simulation-stream?"+q.Encode(), func(ev simulation.Event) error {
			if ev.Terminal() {
				streamErr = ev.Err
				return nil
			}
			r := ev.Record
			total++
			if r.Prediction == "Fail" {
				fail++
			}
			fmt.Printf("%s  %-12s %s  %.4f\n", r.Timestamp, truncate(r.ID, 12), predictionLabel(r.Prediction), r.Confidence)
			return nil
		})
		if err != nil {
			return err
		}
		if streamErr != "" {
			return fmt.Errorf("simulation stopped: %s", streamErr)
		}
		printSuccess("Simulated %d rows: %d pass, %d fail", total, total-fail, fail)
		return nil
	},
}

// --- runs ---

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent training runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/training-runs?limit=%d", limit))
		if err != nil {
			return err
		}

		var runs []struct {
			ID         string    `json:"id"`
			CreatedAt  time.Time `json:"created_at"`
			ModelKind  string    `json:"model_kind"`
			Source     string    `json:"source"`
			TrainRows  int       `json:"train_rows"`
			TestRows   int       `json:"test_rows"`
			DurationMs int64     `json:"duration_ms"`
			Status     string    `json:"status"`
			Error      string    `json:"error"`
			Metrics    *struct {
				Accuracy float64 `json:"accuracy"`
			} `json:"metrics"`
		}
		if err := decodeJSON(resp, &runs); err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No training runs found.")
			return nil
		}

		for _, r := range runs {
			outcome := colorize(colorGreen, r.Status)
			detail := ""
			if r.Metrics != nil {
				detail = fmt.Sprintf("accuracy %.4f", r.Metrics.Accuracy)
			}
			if r.Status != "succeeded" {
				outcome = colorize(colorRed, r.Status)
				detail = truncate(r.Error, 60)
			}
			fmt.Printf("%s  %s  %-8s %-20s train=%d test=%d %6dms  %s  %s\n",
				colorize(colorCyan, shortID(r.ID)),
				r.CreatedAt.Local().Format(time.DateTime),
				r.ModelKind,
				truncate(r.Source, 20),
				r.TrainRows, r.TestRows, r.DurationMs,
				outcome, detail,
			)
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().Int("limit", 20, "maximum number of runs to list")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		fmt.Printf("  %s\n", colorize(colorBold, config.ConfigFilePath()))
		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s  (%s)\n", colorize(colorBold, k.Key), k.Value, k.EnvVar)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Restore a configuration value to its default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd, configUnsetCmd)
}
