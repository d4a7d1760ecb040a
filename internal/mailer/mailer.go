package mailer

import (
	"errors"
	"fmt"
	"html/template"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/domain"
	"github.com/wneessen/go-mail"
)

var (
	ErrMalformedMessage = errors.New("邮件信息格式错误")
	ErrUnsupportedType  = errors.New("不支持的邮件类型")
)

type kind struct {
	template *template.Template
	subject  string
	data     func() any
}

// Renderer 把队列中的邮件信息渲染为可以发送的邮件
type Renderer struct {
	from  string
	kinds map[string]kind
}

func NewRenderer(from, templateDir string) (*Renderer, error) {
	tmpl, err := template.ParseFiles(filepath.Join(templateDir, "roster_updated_email.html"))
	if err != nil {
		return nil, err
	}

	return &Renderer{
		from: from,
		kinds: map[string]kind{
			domain.MailTypeRosterUpdated: {
				template: tmpl,
				subject:  "排班系统 - 排班变更通知",
				data:     func() any { return &domain.RosterUpdatedMailData{} },
			},
		},
	}, nil
}

// Render 返回的错误如果是 ErrMalformedMessage 或 ErrUnsupportedType，说明消息本身有问题，重试也不会成功
func (r *Renderer) Render(body []byte) (*mail.Msg, error) {
	var message struct {
		Type string          `json:"type"`
		To   string          `json:"to"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &message); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	k, exists := r.kinds[message.Type]
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, message.Type)
	}

	data := k.data()
	if err := json.Unmarshal(message.Data, data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	msg := mail.NewMsg()
	if err := msg.From(r.from); err != nil {
		return nil, fmt.Errorf("无法设置邮件发件人: %w", err)
	}
	if err := msg.To(message.To); err != nil {
		return nil, fmt.Errorf("%w: 无法设置邮件收件人: %v", ErrMalformedMessage, err)
	}
	if err := msg.SetBodyHTMLTemplate(k.template, data); err != nil {
		return nil, fmt.Errorf("无法设置邮件正文: %w", err)
	}
	msg.Subject(k.subject)

	return msg, nil
}
