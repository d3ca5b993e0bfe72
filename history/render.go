package history

import (
	"fmt"
	"html/template"
	"io"
	"time"
)

const listTemplate = `{{define "list"}}{{if not .Cards}}<div class="empty-state">
  <i class="fas fa-history"></i>
  <h3>Nenhuma conversa encontrada</h3>
  <p>As conversas com os agentes aparecerão aqui.</p>
</div>{{else}}{{range .Cards}}<div class="historico-card" data-id="{{.ID}}">
  <div class="card-header">
    <span class="agent-name">{{.AgentName}}</span>
    <span class="agent-id">{{.AgentID}}</span>
  </div>
  <div class="card-meta">
    <span class="card-date">{{.Date}}</span>
    <span class="card-count">{{.Count}} mensagens</span>
  </div>
  <p class="card-preview">{{.Preview}}</p>
  <div class="card-actions">
    <button class="btn-view" data-action="view" data-id="{{.ID}}">Ver</button>
    <button class="btn-recover" data-action="recover" data-id="{{.ID}}">Recuperar</button>
    <button class="btn-delete" data-action="delete" data-id="{{.ID}}">Excluir</button>
  </div>
</div>
{{end}}{{end}}{{end}}`

const detailTemplate = `{{define "detail"}}<div class="conversation-detail" data-id="{{.ID}}">
  <div class="detail-header">
    <h3>{{.AgentName}}</h3>
    <span class="detail-date">{{.Date}}</span>
  </div>
  <div class="detail-messages">
{{range .Messages}}    <div class="message {{.Role}}">
      <div class="message-header">
        <span class="message-label">{{.Label}}</span>
        <span class="message-time">{{.Time}}</span>
      </div>
      <div class="message-content">{{.Content}}</div>
    </div>
{{end}}  </div>
</div>{{end}}`

type cardView struct {
	ID        int64
	AgentName string
	AgentID   string
	Date      string
	Count     int
	Preview   string
}

type messageView struct {
	Role    Role
	Label   string
	Time    string
	Content string
}

type detailView struct {
	ID        int64
	AgentName string
	Date      string
	Messages  []messageView
}

// Renderer turns records into HTML fragments for the history page.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses the list and detail templates.
func NewRenderer() *Renderer {
	tmpl := template.Must(template.New("history").Parse(listTemplate))
	template.Must(tmpl.Parse(detailTemplate))
	return &Renderer{tmpl: tmpl}
}

// RenderList writes one card per record, or the empty state.
func (r *Renderer) RenderList(w io.Writer, records []Record, now time.Time) error {
	cards := make([]cardView, 0, len(records))
	for _, rec := range records {
		cards = append(cards, cardView{
			ID:        rec.ID,
			AgentName: rec.AgentName,
			AgentID:   rec.AgentID,
			Date:      FormatRelativeDate(rec.Timestamp, now),
			Count:     len(rec.Messages),
			Preview:   rec.Preview,
		})
	}
	if err := r.tmpl.ExecuteTemplate(w, "list", struct{ Cards []cardView }{cards}); err != nil {
		return fmt.Errorf("rendering history list: %w", err)
	}
	return nil
}

// RenderDetail writes the full transcript of rec.
func (r *Renderer) RenderDetail(w io.Writer, rec Record, now time.Time) error {
	view := detailView{
		ID:        rec.ID,
		AgentName: rec.AgentName,
		Date:      FormatRelativeDate(rec.Timestamp, now),
		Messages:  make([]messageView, 0, len(rec.Messages)),
	}
	for _, msg := range rec.Messages {
		label := rec.AgentName
		if msg.Role == RoleUser {
			label = "Você"
		}
		ts := msg.Timestamp
		if ts == "" {
			ts = rec.Timestamp
		}
		view.Messages = append(view.Messages, messageView{
			Role:    msg.Role,
			Label:   label,
			Time:    FormatRelativeDate(ts, now),
			Content: msg.Content,
		})
	}
	if err := r.tmpl.ExecuteTemplate(w, "detail", view); err != nil {
		return fmt.Errorf("rendering conversation %d: %w", rec.ID, err)
	}
	return nil
}
