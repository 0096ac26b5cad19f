package assembler

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
)

var _ retriever.Retriever = (*Assembler)(nil)

// Retrieve implements eino's retriever.Retriever. Each used match becomes a
// schema.Document carrying its cleaned content, score and metadata. A
// retriever.WithTopK option overrides the configured TopK for this call.
// Store failures degrade to no documents unless FailOnStoreError is set.
func (a *Assembler) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	topK := a.cfg.TopK
	o := retriever.GetCommonOptions(&retriever.Options{TopK: &topK}, opts...)

	sub := a
	if o.TopK != nil && *o.TopK > 0 && *o.TopK != a.cfg.TopK {
		cp := *a
		cp.cfg.TopK = *o.TopK
		sub = &cp
	}

	res, err := sub.Assemble(ctx, Request{Query: query})
	if err != nil {
		return nil, err
	}
	return res.Documents(), nil
}

// Documents returns the contributing matches as eino documents, in match
// order.
func (r *Result) Documents() []*schema.Document {
	docs := make([]*schema.Document, 0, len(r.docs))
	for _, d := range r.docs {
		meta := make(map[string]any, len(d.meta))
		for k, v := range d.meta {
			meta[k] = v
		}
		doc := &schema.Document{ID: d.id, Content: d.content, MetaData: meta}
		docs = append(docs, doc.WithScore(float64(d.score)))
	}
	return docs
}

// Message renders the context as a system message for the prompt. It
// returns nil when there is no context to add.
func (r *Result) Message() *schema.Message {
	if strings.TrimSpace(r.Text) == "" {
		return nil
	}
	return schema.SystemMessage("Relevant context:\n" + r.Text)
}
