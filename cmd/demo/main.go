// Command demo sends one question about a dataset to a running DataGem
// server and prints the streamed answer as it arrives.
//
// Usage:
//
//	demo [-server http://localhost:8000] [-data sales.csv] "What is the average price?"
//
// The dataset may be a CSV file with a header row or a JSON array of
// objects. Numeric CSV cells are sent as numbers.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rhuss/datagem/pkg/api"
)

func main() {
	server := flag.String("server", "http://localhost:8000", "DataGem server URL")
	dataPath := flag.String("data", "", "CSV or JSON dataset file")
	flag.Parse()

	message := strings.Join(flag.Args(), " ")
	if message == "" {
		fmt.Fprintln(os.Stderr, "usage: demo [-server URL] [-data FILE] MESSAGE")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, *server, *dataPath, message, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, server, dataPath, message string, out io.Writer) error {
	req := &api.ChatRequest{Message: message}
	if dataPath != "" {
		ds, err := loadDataset(dataPath)
		if err != nil {
			return err
		}
		req.Dataset = ds
	}

	if apiErr := api.ValidateChatRequest(req, api.DefaultValidationConfig()); apiErr != nil {
		return apiErr
	}

	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(server, "/")+"/chat", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp api.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != nil {
			return errResp.Error
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}

	// Copy in small reads so chunks appear as they are flushed.
	r := bufio.NewReaderSize(resp.Body, 512)
	buf := make([]byte, 512)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(out)
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// loadDataset reads a CSV or JSON file into a dataset, chosen by extension.
func loadDataset(path string) (api.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".json") {
		var ds api.Dataset
		if err := json.NewDecoder(f).Decode(&ds); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
		return ds, nil
	}
	return readCSV(f)
}

func readCSV(r io.Reader) (api.Dataset, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := records[0]
	ds := make(api.Dataset, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(api.Row, len(header))
		for i, col := range header {
			if i >= len(rec) || rec[i] == "" {
				row[col] = nil
				continue
			}
			if f, err := strconv.ParseFloat(rec[i], 64); err == nil {
				row[col] = f
			} else {
				row[col] = rec[i]
			}
		}
		ds = append(ds, row)
	}
	return ds, nil
}
