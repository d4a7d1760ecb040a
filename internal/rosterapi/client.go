package rosterapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/domain"
)

// Session 携带访问令牌，每次调用都需要显式传入
type Session struct {
	Token string
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient 中 timeout 为 0 表示不设置请求超时
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) do(ctx context.Context, sess *Session, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("无法序列化请求: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequest, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sess != nil && sess.Token != "" {
		req.Header.Set("Authorization", "Bearer "+sess.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequest, err)
	}
	defer resp.Body.Close()

	return decodeEnvelope(resp, out)
}

func (c *Client) Login(ctx context.Context, username, password string) (Session, *domain.Employee, error) {
	req := struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}{username, password}

	var res struct {
		Token    string          `json:"token"`
		Employee domain.Employee `json:"employee"`
	}
	if err := c.do(ctx, nil, http.MethodPost, "/auth/login", req, &res); err != nil {
		return Session{}, nil, err
	}
	if res.Token == "" {
		return Session{}, nil, fmt.Errorf("%w: 缺少 token", ErrMalformedResponse)
	}

	return Session{Token: res.Token}, &res.Employee, nil
}

func (c *Client) GetMyInfo(ctx context.Context, sess Session) (*domain.Employee, error) {
	var employee domain.Employee
	if err := c.do(ctx, &sess, http.MethodGet, "/my-info", nil, &employee); err != nil {
		return nil, err
	}
	return &employee, nil
}

func (c *Client) ListRoster(ctx context.Context, sess Session, scope domain.Scope, month domain.Month) ([]domain.RosterEntry, error) {
	q := url.Values{}
	q.Set("scope", scope.String())
	q.Set("month", month.String())

	var entries []domain.RosterEntry
	if err := c.do(ctx, &sess, http.MethodGet, "/roster?"+q.Encode(), nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Client) SubmitRoster(ctx context.Context, sess Session, entries []domain.RosterEntry) error {
	return c.do(ctx, &sess, http.MethodPost, "/roster", entries, nil)
}

func (c *Client) DeleteRosterEntry(ctx context.Context, sess Session, employeeID int64, date domain.Date) error {
	path := fmt.Sprintf("/roster/%s/%s", strconv.FormatInt(employeeID, 10), url.PathEscape(string(date)))
	return c.do(ctx, &sess, http.MethodDelete, path, nil, nil)
}

func (c *Client) ListShifts(ctx context.Context, sess Session) ([]domain.Shift, error) {
	var shifts []domain.Shift
	if err := c.do(ctx, &sess, http.MethodGet, "/shifts", nil, &shifts); err != nil {
		return nil, err
	}
	return shifts, nil
}

// ListEmployees 当 department 为空时返回所有员工
func (c *Client) ListEmployees(ctx context.Context, sess Session, department string) ([]domain.Employee, error) {
	path := "/employees"
	if department != "" {
		path += "?" + url.Values{"department": []string{department}}.Encode()
	}

	var employees []domain.Employee
	if err := c.do(ctx, &sess, http.MethodGet, path, nil, &employees); err != nil {
		return nil, err
	}
	return employees, nil
}
