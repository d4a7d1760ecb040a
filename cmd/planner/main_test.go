package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/domain"
)

// fakeBackend 模拟排班服务端的最小子集
type fakeBackend struct {
	mu        sync.Mutex
	roster    map[domain.Key]domain.RosterEntry
	submitted [][]domain.RosterEntry
	deleted   []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		roster: map[domain.Key]domain.RosterEntry{
			{EmployeeID: 2, Date: "2024-06-02"}: {EmployeeID: 2, Date: "2024-06-02", ShiftID: 1},
		},
	}
}

func writeEnvelope(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "message": "ok", "data": data})
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/my-info":
		writeEnvelope(w, domain.Employee{ID: 2, FullName: "李静"})
	case r.Method == http.MethodGet && r.URL.Path == "/employees":
		writeEnvelope(w, []domain.Employee{
			{ID: 1, EmployeeCode: "E00001", FullName: "王伟", IsActive: true},
			{ID: 2, EmployeeCode: "E00002", FullName: "李静", IsActive: true},
		})
	case r.Method == http.MethodGet && r.URL.Path == "/shifts":
		writeEnvelope(w, []domain.Shift{
			{ID: 1, ShiftCode: "D", Name: "早班"},
			{ID: 2, ShiftCode: "OFF", Name: "休息", IsOff: true},
		})
	case r.Method == http.MethodGet && r.URL.Path == "/roster":
		entries := make([]domain.RosterEntry, 0, len(b.roster))
		for _, e := range b.roster {
			if r.URL.Query().Get("scope") == "2" && e.EmployeeID != 2 {
				continue
			}
			entries = append(entries, e)
		}
		writeEnvelope(w, entries)
	case r.Method == http.MethodPost && r.URL.Path == "/roster":
		body, _ := io.ReadAll(r.Body)
		var entries []domain.RosterEntry
		_ = json.Unmarshal(body, &entries)
		b.submitted = append(b.submitted, entries)
		for _, e := range entries {
			b.roster[e.Key()] = e
		}
		writeEnvelope(w, nil)
	case r.Method == http.MethodDelete:
		b.deleted = append(b.deleted, r.URL.Path)
		delete(b.roster, domain.Key{EmployeeID: 2, Date: "2024-06-02"})
		writeEnvelope(w, nil)
	default:
		http.NotFound(w, r)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func setup(t *testing.T) *fakeBackend {
	t.Helper()
	backend := newFakeBackend()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	t.Setenv("PLANNER_BASE_URL", srv.URL)
	t.Setenv("PLANNER_TOKEN", "token")
	return backend
}

func TestShow(t *testing.T) {
	setup(t)

	out, err := run(t, "show", "--month", "2024-06")
	require.NoError(t, err)
	assert.Contains(t, out, "E00001")
	assert.Contains(t, out, "李静")
	assert.Contains(t, out, " D ")
}

func TestShowSelfScope(t *testing.T) {
	setup(t)

	out, err := run(t, "show", "--month", "2024-06", "--scope", "self")
	require.NoError(t, err)
	assert.Contains(t, out, "李静")
	assert.NotContains(t, out, "王伟")
}

func TestShowRequiresToken(t *testing.T) {
	setup(t)
	t.Setenv("PLANNER_TOKEN", "")

	_, err := run(t, "show", "--month", "2024-06")
	assert.Error(t, err)
}

func writePlan(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
month: 2024-06
edits:
  - employees: [1]
    dates: [2024-06-01]
    shift: OFF
  - employees: [2]
    dates: [2024-06-02]
    shift: "-"
`), 0o644))
	return path
}

func TestApplyDryRun(t *testing.T) {
	backend := setup(t)

	out, err := run(t, "apply", "--plan", writePlan(t), "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "将指定 1 个格子，清除 1 个格子")
	assert.Empty(t, backend.submitted)
	assert.Empty(t, backend.deleted)
}

func TestApply(t *testing.T) {
	backend := setup(t)

	out, err := run(t, "apply", "--plan", writePlan(t))
	require.NoError(t, err)
	assert.Contains(t, out, "已提交 1 条排班")

	assert.Equal(t, []string{"/roster/2/2024-06-02"}, backend.deleted)
	require.Len(t, backend.submitted, 1)
	assert.Equal(t, []domain.RosterEntry{{EmployeeID: 1, Date: "2024-06-01", ShiftID: 2, IsOff: true}}, backend.submitted[0])
}

func TestExportThenImport(t *testing.T) {
	backend := setup(t)
	path := filepath.Join(t.TempDir(), "roster.xlsx")

	_, err := run(t, "export", "--month", "2024-06", "--out", path)
	require.NoError(t, err)

	// 导出的表格原样导入不会产生任何修改
	out, err := run(t, "import", "--month", "2024-06", "--in", path)
	require.NoError(t, err)
	assert.Contains(t, out, "没有需要提交的修改")
	assert.Empty(t, backend.submitted)
	assert.Empty(t, backend.deleted)
}
