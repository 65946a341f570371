package render

import (
	"bytes"
	"fmt"
	"image/color"
	"os"
	"strings"
	"time"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"

	"github.com/attestra/attestra-backend/internal/pkg/logger"
)

const (
	certWidth  = 1400
	certHeight = 990
)

// CertificateData is the flattened subset of an evidence record that
// appears on the rendered document.
type CertificateData struct {
	TenantName    string
	EmployeeName  string
	RoleProfileID string
	SessionID     string
	ContentHash   string
	Outcome       string
	Score         *float64
	GeneratedAt   time.Time
	ModuleTitles  []string
}

// CertificateRenderer turns evidence into a PNG completion document.
// Rendering is deterministic for a given input; failures are the
// caller's to classify.
type CertificateRenderer interface {
	Render(data CertificateData) ([]byte, error)
}

type certificateRenderer struct {
	log       *logger.Logger
	titleFace font.Face
	bodyFace  font.Face
	smallFace font.Face
}

func NewCertificateRenderer(log *logger.Logger) (CertificateRenderer, error) {
	serviceLog := log.With("service", "CertificateRenderer")

	fontPath := strings.TrimSpace(os.Getenv("CERTIFICATE_FONT"))
	if fontPath == "" {
		return nil, fmt.Errorf("Env var CERTIFICATE_FONT is empty")
	}
	serviceLog.Info("Loading certificate font", "font", fontPath)

	fontBytes, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read font file: %w", err)
	}
	parsedFont, err := truetype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TTF: %w", err)
	}

	face := func(size float64) font.Face {
		return truetype.NewFace(parsedFont, &truetype.Options{
			Size:    size,
			DPI:     72,
			Hinting: font.HintingNone,
		})
	}

	return &certificateRenderer{
		log:       serviceLog,
		titleFace: face(64),
		bodyFace:  face(32),
		smallFace: face(18),
	}, nil
}

func (r *certificateRenderer) Render(data CertificateData) ([]byte, error) {
	if strings.TrimSpace(data.EmployeeName) == "" {
		return nil, fmt.Errorf("employee name required")
	}
	if strings.TrimSpace(data.SessionID) == "" {
		return nil, fmt.Errorf("session id required")
	}

	dc := gg.NewContext(certWidth, certHeight)

	dc.SetColor(color.NRGBA{R: 0xFA, G: 0xFA, B: 0xF7, A: 0xFF})
	dc.Clear()

	dc.SetColor(color.NRGBA{R: 0x1B, G: 0x2A, B: 0x4A, A: 0xFF})
	dc.SetLineWidth(6)
	dc.DrawRectangle(40, 40, certWidth-80, certHeight-80)
	dc.Stroke()

	dc.SetFontFace(r.titleFace)
	dc.DrawStringAnchored("Certificate of Completion", certWidth/2, 170, 0.5, 0.5)

	dc.SetFontFace(r.bodyFace)
	dc.DrawStringAnchored(data.TenantName, certWidth/2, 250, 0.5, 0.5)
	dc.DrawStringAnchored("This certifies that", certWidth/2, 340, 0.5, 0.5)

	dc.SetFontFace(r.titleFace)
	dc.DrawStringAnchored(data.EmployeeName, certWidth/2, 430, 0.5, 0.5)

	dc.SetFontFace(r.bodyFace)
	line := fmt.Sprintf("completed role training for %q with outcome: %s", data.RoleProfileID, data.Outcome)
	if data.Score != nil {
		line = fmt.Sprintf("%s (score %.0f%%)", line, *data.Score*100)
	}
	dc.DrawStringAnchored(line, certWidth/2, 520, 0.5, 0.5)

	y := 600.0
	dc.SetFontFace(r.smallFace)
	for i, title := range data.ModuleTitles {
		if i >= 8 {
			dc.DrawStringAnchored(fmt.Sprintf("... and %d more modules", len(data.ModuleTitles)-i), certWidth/2, y, 0.5, 0.5)
			break
		}
		dc.DrawStringAnchored(title, certWidth/2, y, 0.5, 0.5)
		y += 30
	}

	dc.SetFontFace(r.smallFace)
	dc.DrawStringAnchored(fmt.Sprintf("Session %s", data.SessionID), certWidth/2, certHeight-140, 0.5, 0.5)
	dc.DrawStringAnchored(fmt.Sprintf("Evidence hash %s", data.ContentHash), certWidth/2, certHeight-110, 0.5, 0.5)
	dc.DrawStringAnchored(data.GeneratedAt.UTC().Format("2006-01-02 15:04 UTC"), certWidth/2, certHeight-80, 0.5, 0.5)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode certificate png: %w", err)
	}
	return buf.Bytes(), nil
}
