// Package render produces printable invoice documents.
package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	appconfig "github.com/opencounter/opencounter/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// InvoiceDocument is everything the renderer needs; it deliberately takes
// plain values so rendering never reads the database.
type InvoiceDocument struct {
	Number    string
	IssueDate string
	Subtotal  string
	TaxLabel  string
	TaxAmount string
	Total     string
	Items     []DocumentItem
}

type DocumentItem struct {
	Name      string
	Quantity  int64
	UnitPrice string
	Amount    string
}

// Renderer writes an invoice document and returns its storage reference.
type Renderer interface {
	RenderInvoice(ctx context.Context, doc InvoiceDocument) (string, error)
}

type pdfRenderer struct {
	log *zap.Logger
	dir string
}

type RendererParam struct {
	fx.In

	Cfg appconfig.Config
	Log *zap.Logger
}

func NewPDFRenderer(p RendererParam) Renderer {
	return &pdfRenderer{
		log: p.Log.Named("render.pdf"),
		dir: p.Cfg.DocumentDir,
	}
}

func (r *pdfRenderer) RenderInvoice(ctx context.Context, doc InvoiceDocument) (string, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(10,
		text.NewCol(12, "Invoice", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(16,
		col.New(6).Add(
			text.New("Invoice number: "+doc.Number, props.Text{Top: 0}),
			text.New("Date of issue: "+doc.IssueDate, props.Text{Top: 4}),
		),
		col.New(6),
	)

	m.AddRow(10,
		text.NewCol(6, "Item", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Unit price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	for _, item := range doc.Items {
		m.AddRow(12,
			text.NewCol(6, item.Name, props.Text{Size: 9}),
			text.NewCol(2, fmt.Sprintf("%d", item.Quantity), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, item.UnitPrice, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, item.Amount, props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Subtotal", props.Text{Size: 9}),
		text.NewCol(2, doc.Subtotal, props.Text{Size: 9, Align: align.Right}),
	)
	if doc.TaxLabel != "" {
		m.AddRow(10,
			col.New(8),
			text.NewCol(2, doc.TaxLabel, props.Text{Size: 9}),
			text.NewCol(2, doc.TaxAmount, props.Text{Size: 9, Align: align.Right}),
		)
	}
	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Total", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, doc.Total, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	rendered, err := m.Generate()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", err
	}
	ref := filepath.Join(r.dir, doc.Number+".pdf")
	if err := os.WriteFile(ref, rendered.GetBytes(), 0o644); err != nil {
		return "", err
	}

	r.log.Info("invoice document rendered", zap.String("ref", ref))
	return ref, nil
}
