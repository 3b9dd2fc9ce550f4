// Command export-proxy is a caching proxy in front of the export service.
// It serves /exportar through the export client, so repeated range queries
// are answered from Redis instead of re-running the upstream export.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/dashmarketing/export-client/pkg/client"
	"github.com/dashmarketing/export-client/pkg/export"
	"github.com/dashmarketing/export-client/pkg/logging"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Version of the export proxy.
const Version = "1.2.1"

func main() {
	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: getEnv("ENV", "production") == "development",
		Output: os.Stderr,
	})

	redisURL := getEnv("REDIS_URL", "localhost:6379")
	port := getEnv("PORT", "8080")
	baseURL := getEnv("EXPORT_BASE_URL", "")
	userAgent := getEnv("USER_AGENT", "export-proxy/"+Version)

	if baseURL == "" {
		logger.Fatal().Msg("EXPORT_BASE_URL is required")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: redisURL,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Str("addr", redisURL).Msg("Failed to connect to Redis")
	}
	logger.Info().Str("addr", redisURL).Msg("Connected to Redis")

	exportClient, err := client.New(client.DefaultConfig(redisClient, baseURL, userAgent))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create export client")
	}
	defer exportClient.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler(redisClient))
	mux.HandleFunc("/version", versionHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/exportar", exportHandler(exportClient, logger))
	mux.HandleFunc("/exportar_mensual", exportMensualHandler(exportClient, logger))

	addr := ":" + port
	logger.Info().
		Str("addr", addr).
		Str("upstream", baseURL).
		Str("version", Version).
		Msg("Starting export proxy")

	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "ok"}`))
}

func versionHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"version": Version})
}

func readyHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}

// rowIterator is the streaming surface shared by the single-range and
// month-split iterators.
type rowIterator interface {
	Next(ctx context.Context) bool
	Row() export.Row
	Err() error
	Result() export.Result
}

// exportHandler runs a full export through the caching client and streams
// the rows back in the upstream's response shape.
func exportHandler(exportClient *client.Client, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := parseExportQuery(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		it, err := exportClient.FetchAll(req)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		streamExport(r.Context(), w, req, it, logger)
	}
}

// exportMensualHandler exports month by month, for ranges too large to run
// as a single export.
func exportMensualHandler(exportClient *client.Client, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := parseExportQuery(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		it, err := exportClient.FetchAllMonthly(req)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		streamExport(r.Context(), w, req, it, logger)
	}
}

// streamExport writes the rows first, then the metadata tail once the
// outcome is known.
func streamExport(ctx context.Context, w http.ResponseWriter, req export.Request, it rowIterator, logger zerolog.Logger) {
	w.Header().Set("Content-Type", "application/json")

	w.Write([]byte(`{"rows":[`))
	first := true
	for it.Next(ctx) {
		if !first {
			w.Write([]byte(","))
		}
		first = false
		if err := json.NewEncoder(&noNewline{w}).Encode(it.Row()); err != nil {
			logger.Error().Err(err).Msg("Failed to encode row")
			return
		}
	}
	w.Write([]byte(`],`))

	result := it.Result()
	tail := map[string]any{
		"from":    export.FormatDate(req.From),
		"to":      export.FormatDate(req.To),
		"pages":   result.Pages,
		"partial": false,
	}
	if result.RowCount != nil {
		tail["rowCount"] = *result.RowCount
	}

	switch iterErr := it.Err(); {
	case iterErr == nil && result.Capped:
		tail["partial"] = true
		tail["reason"] = "max_pages"
	case export.IsPartial(iterErr):
		tail["partial"] = true
		tail["reason"] = "upstream_partial"
		logger.Warn().
			Str("from", export.FormatDate(req.From)).
			Str("to", export.FormatDate(req.To)).
			Msg("Upstream export partial - retry later")
	case iterErr != nil:
		tail["partial"] = true
		tail["error"] = iterErr.Error()
		logger.Error().Err(iterErr).Msg("Export failed mid-stream")
	}

	data, _ := json.Marshal(tail)
	// Strip the braces so the tail merges into the open object.
	w.Write(data[1 : len(data)-1])
	w.Write([]byte(`}`))
}

// noNewline drops the trailing newline json.Encoder emits.
type noNewline struct {
	w http.ResponseWriter
}

func (n *noNewline) Write(p []byte) (int, error) {
	if len(p) > 0 && p[len(p)-1] == '\n' {
		written, err := n.w.Write(p[:len(p)-1])
		return written + 1, err
	}
	return n.w.Write(p)
}

// parseExportQuery maps /exportar query parameters onto an export request.
func parseExportQuery(r *http.Request) (export.Request, error) {
	q := r.URL.Query()

	from, err := export.ParseDate(q.Get("from"))
	if err != nil {
		return export.Request{}, err
	}
	to, err := export.ParseDate(q.Get("to"))
	if err != nil {
		return export.Request{}, err
	}

	req := export.Request{From: from, To: to, PageSize: 1000, MaxPages: 10000}

	if v := q.Get("pageSize"); v != "" {
		if req.PageSize, err = strconv.Atoi(v); err != nil {
			return export.Request{}, err
		}
	}
	if v := q.Get("maxPages"); v != "" {
		if req.MaxPages, err = strconv.Atoi(v); err != nil {
			return export.Request{}, err
		}
	}

	return req, req.Validate()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
