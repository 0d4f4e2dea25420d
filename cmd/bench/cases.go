// README: Bench cases; environment checks, a scripted booking conversation, payload rejection and load.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

// step is one utterance of a scripted conversation and the states accepted after it.
type step struct {
	Text   string
	States []string
}

type turnReply struct {
	Reply     string `json:"reply"`
	State     string `json:"state"`
	BookingID string `json:"booking_id"`
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-7s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}

	return results
}

func (r *Runner) cases() []TestCase {
	base := r.cfg.BaseURL
	return []TestCase{
		{
			Name: "Env: Postgres connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "SKIP", Note: "dsn not set"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.db.Ping(ctx); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "Env: Redis connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: "SKIP", Note: "redis not set"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "Migration: apply (optional)",
			Run: func(ctx context.Context, r *Runner) Result {
				if !r.cfg.ApplyMigration || r.db == nil {
					return Result{Status: "SKIP", Note: "apply-migration=false or no db"}
				}
				sql, err := os.ReadFile(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				for _, s := range splitSQL(string(sql)) {
					if _, err := r.db.Exec(ctx, s); err != nil {
						return Result{Status: "FAIL", Note: err.Error()}
					}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "Migration: tables exist",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "SKIP", Note: "dsn not set"}
				}
				tables, err := extractTables(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				for _, t := range tables {
					var exists bool
					err := r.db.QueryRow(ctx,
						"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
						t,
					).Scan(&exists)
					if err != nil {
						return Result{Status: "FAIL", Note: err.Error()}
					}
					if !exists {
						return Result{Status: "FAIL", Note: "missing table: " + t}
					}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "API: health",
			Run: func(ctx context.Context, r *Runner) Result {
				start := time.Now()
				resp, err := r.httpc.Get(base + "/health")
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				_ = resp.Body.Close()
				if resp.StatusCode != http.StatusOK {
					return Result{Status: "FAIL", Note: fmt.Sprintf("status=%d", resp.StatusCode)}
				}
				return Result{Status: "PASS", Latency: time.Since(start)}
			},
		},
		{
			Name: "Chat: greeting is bare",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.conversation(ctx, benchPhone(), []step{{Text: "hola", States: []string{"greeting"}}})
			},
		},
		{
			Name: "Chat: slot filling to confirmed booking",
			Run: func(ctx context.Context, r *Runner) Result {
				res := r.conversation(ctx, benchPhone(), []step{
					{Text: "necesito un taxi", States: []string{"collecting_origin"}},
					{Text: "1 de mayo 449, concordia", States: []string{"collecting_destination"}},
					{Text: "diamante 2500, concordia", States: []string{"collecting_payment"}},
					{Text: "efectivo", States: []string{"collecting_service_type"}},
					// Immediate trips outside business hours stay collecting with an error.
					{Text: "ahora", States: []string{"ready_to_confirm", "collecting_service_type"}},
					{Text: "sí", States: []string{"completed", "collecting_service_type"}},
				})
				return res
			},
		},
		{
			Name: "Chat: cancel resets",
			Run: func(ctx context.Context, r *Runner) Result {
				phone := benchPhone()
				return r.conversation(ctx, phone, []step{
					{Text: "desde guemes 800 hasta diamante 2500", States: []string{"collecting_payment"}},
					{Text: "cancelar", States: []string{"cancelled"}},
					{Text: "necesito un taxi", States: []string{"collecting_origin"}},
				})
			},
		},
		{
			Name: "Chat: unsupported payment is rejected",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.conversation(ctx, benchPhone(), []step{
					{Text: "desde guemes 800 hasta diamante 2500", States: []string{"collecting_payment"}},
					{Text: "pago con bitcoin", States: []string{"collecting_payment"}},
				})
			},
		},
		{
			Name: "Webhook: missing From -> 400",
			Run: func(ctx context.Context, r *Runner) Result {
				status, _, latency, err := r.post(ctx, base+"/webhook/whatsapp", map[string]any{"Body": "hola"})
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				if status != http.StatusBadRequest {
					return Result{Status: "FAIL", Latency: latency, Note: fmt.Sprintf("status=%d", status)}
				}
				return Result{Status: "PASS", Latency: latency}
			},
		},
		{
			Name: "Chat: concurrent turns on one phone never fail",
			Run: func(ctx context.Context, r *Runner) Result {
				return concurrentTurns(ctx, r, base+"/api/chat", benchPhone())
			},
		},
		{
			Name: "Perf: chat load",
			Run: func(ctx context.Context, r *Runner) Result {
				return perfLoad(ctx, r, base+"/api/chat")
			},
		},
	}
}

// benchPhone returns a fresh phone number so runs never share sessions.
func benchPhone() string {
	id := uuid.New()
	n := uint64(0)
	for _, b := range id[:6] {
		n = n<<8 | uint64(b)
	}
	return fmt.Sprintf("549%010d", n%10_000_000_000)
}

func (r *Runner) conversation(ctx context.Context, phone string, steps []step) Result {
	var total time.Duration
	for i, s := range steps {
		status, body, latency, err := r.post(ctx, r.cfg.BaseURL+"/api/chat", map[string]any{"phone": phone, "message": s.Text})
		total += latency
		if err != nil {
			return Result{Status: "FAIL", Note: err.Error()}
		}
		if status != http.StatusOK {
			return Result{Status: "FAIL", Latency: total, Note: fmt.Sprintf("step %d status=%d", i+1, status)}
		}
		var reply turnReply
		if err := json.Unmarshal(body, &reply); err != nil {
			return Result{Status: "FAIL", Note: err.Error()}
		}
		if !containsString(s.States, reply.State) {
			return Result{Status: "FAIL", Latency: total, Note: fmt.Sprintf("step %d %q: state=%s reply=%q", i+1, s.Text, reply.State, reply.Reply)}
		}
	}
	return Result{Status: "PASS", Latency: total, Note: fmt.Sprintf("turns=%d", len(steps))}
}

func (r *Runner) post(ctx context.Context, url string, body any) (int, []byte, time.Duration, error) {
	b, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return 0, nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.WebhookToken != "" {
		req.Header.Set("X-Webhook-Token", r.cfg.WebhookToken)
	}
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, 0, err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	return resp.StatusCode, out, time.Since(start), err
}

func concurrentTurns(ctx context.Context, r *Runner, url, phone string) Result {
	var wg sync.WaitGroup
	var ok, failed atomic.Int64

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, _, _, err := r.post(ctx, url, map[string]any{"phone": phone, "message": "necesito un taxi"})
			if err != nil || status != http.StatusOK {
				failed.Add(1)
				return
			}
			ok.Add(1)
		}()
	}
	wg.Wait()

	if failed.Load() > 0 {
		return Result{Status: "FAIL", Note: fmt.Sprintf("ok=%d failed=%d", ok.Load(), failed.Load())}
	}
	return Result{Status: "PASS", Note: fmt.Sprintf("ok=%d", ok.Load())}
}

func perfLoad(ctx context.Context, r *Runner, url string) Result {
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			phone := benchPhone()
			for time.Now().Before(end) && ctx.Err() == nil {
				status, _, _, err := r.post(ctx, url, map[string]any{"phone": phone, "message": "desde guemes 800 hasta diamante 2500"})
				if err != nil || status >= 500 {
					errCount.Add(1)
					continue
				}
				count.Add(1)
			}
		}()
	}
	wg.Wait()

	if count.Load() == 0 {
		return Result{Status: "FAIL", Note: "no requests completed"}
	}
	rps := float64(count.Load()) / r.cfg.Duration.Seconds()
	return Result{Status: "PASS", Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount.Load())}
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	re := regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)
	matches := re.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}

func splitSQL(sql string) []string {
	lines := strings.Split(sql, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "--") || l == "" {
			continue
		}
		filtered = append(filtered, line)
	}
	parts := strings.Split(strings.Join(filtered, "\n"), ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
