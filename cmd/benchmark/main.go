// Benchmark tool for testing Harrier against labeled transaction data.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/transactions.csv -url http://localhost:8080
//
// This tool:
//   1. Reads labeled transaction data (TRANSACTION_ID, TX_AMOUNT, TX_FRAUD, ...)
//   2. Trains a model on the first portion of the data
//   3. Scores the remainder in batches via POST /score
//   4. Compares predictions with actual fraud labels
//   5. Calculates precision, recall, F1-score, and confusion matrix
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LabeledTransaction represents a row from a labeled fraud dataset.
type LabeledTransaction struct {
	TransactionID string
	Datetime      string
	CustomerID    string
	TerminalID    string
	Amount        float64
	TimeSeconds   int64
	TimeDays      int64
	IsFraud       bool
	Scenario      int
}

// TransactionRecord is the Harrier API wire format for a transaction.
type TransactionRecord struct {
	TransactionID string  `json:"TRANSACTION_ID"`
	TxDatetime    string  `json:"TX_DATETIME,omitempty"`
	CustomerID    string  `json:"CUSTOMER_ID"`
	TerminalID    string  `json:"TERMINAL_ID"`
	TxAmount      float64 `json:"TX_AMOUNT"`
	TxTimeSeconds int64   `json:"TX_TIME_SECONDS"`
	TxTimeDays    int64   `json:"TX_TIME_DAYS"`
	TxFraud       *int    `json:"TX_FRAUD,omitempty"`
}

// TrainRequest is the Harrier /train request format.
type TrainRequest struct {
	BatchID      string              `json:"batchId"`
	Transactions []TransactionRecord `json:"transactions"`
}

// ScoreRequest is the Harrier /score request format.
type ScoreRequest struct {
	BatchID      string              `json:"batchId"`
	Backend      string              `json:"backend,omitempty"`
	Transactions []TransactionRecord `json:"transactions"`
}

// ScoredRecord is a scored transaction in the /score response.
type ScoredRecord struct {
	TransactionID  string  `json:"TRANSACTION_ID"`
	TxAmount       float64 `json:"TX_AMOUNT"`
	PredictedFraud int     `json:"predicted_fraud"`
	PredictedProba float64 `json:"predicted_probability"`
}

// ScoreResponse is the Harrier /score response format.
type ScoreResponse struct {
	Records []ScoredRecord `json:"records"`
}

// Metrics tracks benchmark results
type Metrics struct {
	TruePositives  int64 // Fraud predicted as fraud
	FalsePositives int64 // Non-fraud predicted as fraud
	TrueNegatives  int64 // Non-fraud predicted as legitimate
	FalseNegatives int64 // Fraud predicted as legitimate (missed fraud!)

	TotalProcessed int64
	TotalFraud     int64
	TotalNonFraud  int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to labeled transaction CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Harrier base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	backend := flag.String("backend", "logistic", "Scoring backend: logistic or rules")
	limit := flag.Int("limit", 10000, "Maximum transactions to process (0 = all)")
	trainFrac := flag.Float64("train", 0.7, "Fraction of data used for training")
	batchSize := flag.Int("batch", 500, "Transactions per scoring request")
	workers := flag.Int("workers", 4, "Number of concurrent scoring workers")
	verbose := flag.Bool("verbose", false, "Print each mispredicted transaction")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/transactions.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║          HARRIER BENCHMARK - Fraud Scoring                    ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Harrier URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Backend:     %s\n", *backend)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Printf("Train Frac:  %.2f\n", *trainFrac)
	fmt.Println()

	// Check Harrier is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Harrier not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Harrier is running:")
		fmt.Println("  cd harrier && go run cmd/harrier/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Harrier is healthy")

	// Read labeled data
	fmt.Printf("\nReading transaction data from %s...\n", *csvPath)
	transactions, err := readLabeledCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d transactions\n", len(transactions))

	// Count fraud vs non-fraud
	fraudCount := 0
	for _, tx := range transactions {
		if tx.IsFraud {
			fraudCount++
		}
	}
	fmt.Printf("  - Fraud:     %d (%.2f%%)\n", fraudCount, 100*float64(fraudCount)/float64(len(transactions)))
	fmt.Printf("  - Non-fraud: %d (%.2f%%)\n", len(transactions)-fraudCount, 100*float64(len(transactions)-fraudCount)/float64(len(transactions)))

	// Split train/score chronologically
	split := int(float64(len(transactions)) * *trainFrac)
	if split < 1 || split >= len(transactions) {
		fmt.Printf("ERROR: train fraction %.2f leaves no data for scoring\n", *trainFrac)
		os.Exit(1)
	}
	trainSet, scoreSet := transactions[:split], transactions[split:]

	client := &http.Client{Timeout: 5 * time.Minute}

	// Train, unless running the threshold-rule backend
	if *backend != "rules" {
		fmt.Printf("\nTraining on %d transactions...\n", len(trainSet))
		trainStart := time.Now()
		if err := trainModel(client, *baseURL, *tenantID, trainSet); err != nil {
			fmt.Printf("ERROR: Training failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("✓ Model trained in %v\n", time.Since(trainStart).Round(time.Millisecond))
	} else {
		fmt.Println("\nSkipping training (rule backend needs none)")
	}

	// Run benchmark
	fmt.Printf("\nScoring %d transactions with %d workers...\n", len(scoreSet), *workers)
	startTime := time.Now()
	metrics := runBenchmark(client, scoreSet, *baseURL, *tenantID, *backend, *batchSize, *workers, *verbose)
	duration := time.Since(startTime)

	// Print results
	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readLabeledCSV(path string, limit int) ([]LabeledTransaction, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// Read header
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Map column indices
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToUpper(strings.TrimSpace(col))] = i
	}
	for _, required := range []string{"TRANSACTION_ID", "CUSTOMER_ID", "TERMINAL_ID", "TX_AMOUNT", "TX_FRAUD"} {
		if _, ok := colIndex[required]; !ok {
			return nil, fmt.Errorf("missing column %s", required)
		}
	}

	col := func(record []string, name string) string {
		if i, ok := colIndex[name]; ok && i < len(record) {
			return record[i]
		}
		return ""
	}

	var transactions []LabeledTransaction
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		amount, _ := strconv.ParseFloat(col(record, "TX_AMOUNT"), 64)
		timeSeconds, _ := strconv.ParseInt(col(record, "TX_TIME_SECONDS"), 10, 64)
		timeDays, _ := strconv.ParseInt(col(record, "TX_TIME_DAYS"), 10, 64)
		scenario, _ := strconv.Atoi(col(record, "TX_FRAUD_SCENARIO"))

		transactions = append(transactions, LabeledTransaction{
			TransactionID: col(record, "TRANSACTION_ID"),
			Datetime:      col(record, "TX_DATETIME"),
			CustomerID:    col(record, "CUSTOMER_ID"),
			TerminalID:    col(record, "TERMINAL_ID"),
			Amount:        amount,
			TimeSeconds:   timeSeconds,
			TimeDays:      timeDays,
			IsFraud:       col(record, "TX_FRAUD") == "1",
			Scenario:      scenario,
		})

		if limit > 0 && len(transactions) >= limit {
			break
		}
	}

	return transactions, nil
}

func toRecord(tx LabeledTransaction, withLabel bool) TransactionRecord {
	rec := TransactionRecord{
		TransactionID: tx.TransactionID,
		TxDatetime:    tx.Datetime,
		CustomerID:    tx.CustomerID,
		TerminalID:    tx.TerminalID,
		TxAmount:      tx.Amount,
		TxTimeSeconds: tx.TimeSeconds,
		TxTimeDays:    tx.TimeDays,
	}
	if withLabel {
		fraud := 0
		if tx.IsFraud {
			fraud = 1
		}
		rec.TxFraud = &fraud
	}
	return rec
}

func trainModel(client *http.Client, baseURL, tenantID string, trainSet []LabeledTransaction) error {
	records := make([]TransactionRecord, 0, len(trainSet))
	for _, tx := range trainSet {
		records = append(records, toRecord(tx, true))
	}

	body, err := json.Marshal(TrainRequest{
		BatchID:      "benchmark-train",
		Transactions: records,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/train", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, payload)
	}
	return nil
}

func runBenchmark(client *http.Client, transactions []LabeledTransaction, baseURL, tenantID, backend string, batchSize, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	// Chunk the score set into batches
	type chunk struct {
		index int
		txs   []LabeledTransaction
	}
	work := make(chan chunk, numWorkers)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for c := range work {
				start := time.Now()
				result, err := scoreBatch(client, baseURL, tenantID, backend, c.index, c.txs)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, int64(len(c.txs)))

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, int64(len(c.txs)))
					if verbose {
						fmt.Printf("ERROR: batch %d -> %v\n", c.index, err)
					}
					continue
				}

				// Index predictions by transaction ID
				predicted := make(map[string]ScoredRecord, len(result.Records))
				for _, r := range result.Records {
					predicted[r.TransactionID] = r
				}

				for _, tx := range c.txs {
					if tx.IsFraud {
						atomic.AddInt64(&metrics.TotalFraud, 1)
					} else {
						atomic.AddInt64(&metrics.TotalNonFraud, 1)
					}

					r, ok := predicted[tx.TransactionID]
					if !ok {
						atomic.AddInt64(&metrics.TotalErrors, 1)
						continue
					}

					flagged := r.PredictedFraud == 1
					switch {
					case flagged && tx.IsFraud:
						atomic.AddInt64(&metrics.TruePositives, 1)
					case flagged && !tx.IsFraud:
						atomic.AddInt64(&metrics.FalsePositives, 1)
					case !flagged && !tx.IsFraud:
						atomic.AddInt64(&metrics.TrueNegatives, 1)
					default: // missed fraud
						atomic.AddInt64(&metrics.FalseNegatives, 1)
					}

					if verbose && flagged != tx.IsFraud {
						fmt.Printf("✗ %-12s | Amount: $%10.2f | Fraud: %-5v | Predicted: %d (%.3f) | Scenario: %d\n",
							tx.TransactionID, tx.Amount, tx.IsFraud, r.PredictedFraud, r.PredictedProba, tx.Scenario)
					}
				}
			}
		}()
	}

	// Send work
	for i := 0; i < len(transactions); i += batchSize {
		end := i + batchSize
		if end > len(transactions) {
			end = len(transactions)
		}
		work <- chunk{index: i / batchSize, txs: transactions[i:end]}
	}
	close(work)

	// Wait for completion
	wg.Wait()

	return metrics
}

func scoreBatch(client *http.Client, baseURL, tenantID, backend string, index int, txs []LabeledTransaction) (*ScoreResponse, error) {
	records := make([]TransactionRecord, 0, len(txs))
	for _, tx := range txs {
		// Labels stay client-side so scoring mirrors production input
		records = append(records, toRecord(tx, false))
	}

	body, err := json.Marshal(ScoreRequest{
		BatchID:      fmt.Sprintf("benchmark-score-%03d", index),
		Backend:      backend,
		Transactions: records,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/score", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result ScoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Fraud:      %d\n", m.TotalFraud)
	fmt.Printf("   Total Non-Fraud:  %d\n", m.TotalNonFraud)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\n📈 CONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                    Fraud       Legit")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  F  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("          NF  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	// Calculate metrics
	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\n🎯 DETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flagged, how many were actual fraud)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of fraud, how many did we catch)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct predictions)\n", accuracy)

	// Detection rate analysis
	fmt.Printf("\n🔍 DETECTION ANALYSIS\n")
	if m.TotalFraud > 0 {
		detectionRate := float64(m.TruePositives) / float64(m.TotalFraud) * 100
		missRate := float64(m.FalseNegatives) / float64(m.TotalFraud) * 100
		fmt.Printf("   Fraud Detected:    %d / %d (%.2f%%)\n", m.TruePositives, m.TotalFraud, detectionRate)
		fmt.Printf("   Fraud Missed:      %d / %d (%.2f%%) ⚠️\n", m.FalseNegatives, m.TotalFraud, missRate)
	}
	if m.TotalNonFraud > 0 {
		falseAlarmRate := float64(m.FalsePositives) / float64(m.TotalNonFraud) * 100
		fmt.Printf("   False Alarms:      %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalNonFraud, falseAlarmRate)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		tps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms/tx\n", avgMs)
		fmt.Printf("   Throughput:       %.2f tx/sec\n", tps)
	}

	// Interpretation
	fmt.Printf("\n💡 INTERPRETATION\n")
	if recall >= 0.9 {
		fmt.Println("   ✅ Excellent recall - catching most fraud")
	} else if recall >= 0.7 {
		fmt.Println("   ⚠️  Good recall - but missing some fraud")
	} else if recall >= 0.5 {
		fmt.Println("   ⚠️  Moderate recall - significant fraud being missed")
	} else {
		fmt.Println("   ❌ Poor recall - most fraud is being missed!")
	}

	if precision >= 0.5 {
		fmt.Println("   ✅ Good precision - alerts are meaningful")
	} else if precision >= 0.2 {
		fmt.Println("   ⚠️  Low precision - many false alarms")
	} else {
		fmt.Println("   ❌ Very low precision - mostly false alarms")
	}

	fmt.Println()
}
