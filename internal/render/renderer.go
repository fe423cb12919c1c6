package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"math"
	"strings"

	"github.com/park285/Cheese-Chess-Coach/internal/rules"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var ErrNilPosition = errors.New("position is nil")

type Options struct {
	// Flip draws the board from Black's side.
	Flip   bool
	Title  string
	Status string
}

type BoardRenderer interface {
	RenderPNG(ctx context.Context, pos *rules.Position, opts Options) ([]byte, error)
}

type svgBoardRenderer struct {
	face font.Face
}

func NewBoardRenderer() BoardRenderer {
	return &svgBoardRenderer{face: basicfont.Face7x13}
}

const (
	squareSize      = 64
	boardSize       = squareSize * 8
	sideMargin      = 28
	topMargin       = 92
	bottomMargin    = 28
	titleHeight     = 30
	statusHeight    = 24
	panelGap        = 10
	gapToBoard      = 14
	panelRadius     = 10
	panelPaddingX   = 16
	shadowOffsetY   = 4
	titleMinWidth   = 220
	materialMinWide = 64
)

var (
	lightSquare         = color.RGBA{233, 207, 163, 255}
	darkSquare          = color.RGBA{187, 136, 96, 255}
	lastMoveFill        = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
	lastMoveArrow       = color.NRGBA{R: 148, G: 207, B: 255, A: 170}
	checkFill           = color.NRGBA{R: 230, G: 60, B: 60, A: 150}
	backgroundColor     = color.RGBA{246, 241, 230, 255}
	hudPanelColor       = color.NRGBA{R: 28, G: 31, B: 46, A: 250}
	hudStatusColor      = color.NRGBA{R: 32, G: 35, B: 52, A: 245}
	hudShadowColor      = color.NRGBA{0, 0, 0, 50}
	hudTextPrimary      = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
	hudStatusText       = color.NRGBA{R: 204, G: 210, B: 236, A: 255}
	boardShadowColor    = color.NRGBA{0, 0, 0, 60}
	coordinateTextColor = color.NRGBA{R: 90, G: 70, B: 50, A: 255}
)

var pieceValues = [...]int{rules.Queen: 9, rules.Rook: 5, rules.Bishop: 3, rules.Knight: 3, rules.Pawn: 1}

func (r *svgBoardRenderer) RenderPNG(ctx context.Context, pos *rules.Position, opts Options) ([]byte, error) {
	if pos == nil {
		return nil, ErrNilPosition
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	width := boardSize + sideMargin*2
	height := boardSize + topMargin + bottomMargin
	origin := image.Point{X: sideMargin, Y: topMargin}
	boardRect := image.Rect(origin.X, origin.Y, origin.X+boardSize, origin.Y+boardSize)
	geo := geometry{origin: origin, flip: opts.Flip}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)

	r.drawHUD(img, pos, opts, boardRect)
	drawBoardShadow(img, boardRect)
	drawSquares(img, geo)
	if lm := pos.LastMove(); lm != nil {
		drawLastMove(img, pos, lm, geo)
	}
	if pos.InCheck() {
		if king, ok := kingSquare(pos, pos.Turn()); ok {
			drawSquareOverlay(img, king, geo, checkFill)
		}
	}
	if err := drawPieces(img, pos, geo); err != nil {
		return nil, err
	}
	r.drawCoordinates(img, geo)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// geometry maps squares to pixels for one orientation.
type geometry struct {
	origin image.Point
	flip   bool
}

func (g geometry) rect(sq rules.Square) image.Rectangle {
	col, row := sq.File(), 7-sq.Rank()
	if g.flip {
		col, row = 7-sq.File(), sq.Rank()
	}
	x := g.origin.X + col*squareSize
	y := g.origin.Y + row*squareSize
	return image.Rect(x, y, x+squareSize, y+squareSize)
}

func (g geometry) center(sq rules.Square) pointF {
	r := g.rect(sq)
	return pointF{X: float64(r.Min.X) + squareSize/2, Y: float64(r.Min.Y) + squareSize/2}
}

func drawBoardShadow(img *image.RGBA, boardRect image.Rectangle) {
	shadow := image.Rect(boardRect.Min.X+4, boardRect.Min.Y+6, boardRect.Max.X+8, boardRect.Max.Y+10)
	imagedraw.Draw(img, shadow, image.NewUniform(boardShadowColor), image.Point{}, imagedraw.Over)
}

func drawSquares(dst imagedraw.Image, geo geometry) {
	for i := 0; i < 64; i++ {
		sq := rules.Square(i)
		clr := lightSquare
		if sq.Dark() {
			clr = darkSquare
		}
		imagedraw.Draw(dst, geo.rect(sq), image.NewUniform(clr), image.Point{}, imagedraw.Src)
	}
}

func drawPieces(dst imagedraw.Image, pos *rules.Position, geo geometry) error {
	board := pos.Board()
	for i, piece := range board {
		if piece.Empty() {
			continue
		}
		img, err := pieceImage(piece, squareSize)
		if err != nil {
			return err
		}
		imagedraw.Draw(dst, geo.rect(rules.Square(i)), img, image.Point{}, imagedraw.Over)
	}
	return nil
}

// drawLastMove fills both squares for White's move and draws an arrow for Black's.
func drawLastMove(img *image.RGBA, pos *rules.Position, lm *rules.LastMove, geo geometry) {
	// the mover is the side not to move now
	if pos.Turn() == rules.White {
		drawArrow(img, geo.center(lm.From), geo.center(lm.To), lastMoveArrow)
		return
	}
	drawSquareOverlay(img, lm.From, geo, lastMoveFill)
	drawSquareOverlay(img, lm.To, geo, lastMoveFill)
}

func kingSquare(pos *rules.Position, c rules.Color) (rules.Square, bool) {
	for i, p := range pos.Board() {
		if p.Kind == rules.King && p.Color == c {
			return rules.Square(i), true
		}
	}
	return rules.NoSquare, false
}

func drawSquareOverlay(img *image.RGBA, sq rules.Square, geo geometry, clr color.Color) {
	imagedraw.Draw(img, geo.rect(sq), image.NewUniform(clr), image.Point{}, imagedraw.Over)
}

func drawArrow(img *image.RGBA, start, end pointF, clr color.Color) {
	dx, dy := end.X-start.X, end.Y-start.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	dirX, dirY := dx/length, dy/length
	perpX, perpY := -dirY, dirX

	baseLength := length - squareSize*0.45
	if baseLength < squareSize*0.35 {
		baseLength = length * 0.6
	}
	halfWidth := squareSize * 0.12
	headWidth := squareSize * 0.36

	baseX := start.X + dirX*baseLength
	baseY := start.Y + dirY*baseLength

	fillQuad(img,
		pointF{X: start.X - perpX*halfWidth, Y: start.Y - perpY*halfWidth},
		pointF{X: start.X + perpX*halfWidth, Y: start.Y + perpY*halfWidth},
		pointF{X: baseX + perpX*halfWidth, Y: baseY + perpY*halfWidth},
		pointF{X: baseX - perpX*halfWidth, Y: baseY - perpY*halfWidth},
		clr,
	)
	fillTriangleF(img,
		end,
		pointF{X: baseX - perpX*headWidth/2, Y: baseY - perpY*headWidth/2},
		pointF{X: baseX + perpX*headWidth/2, Y: baseY + perpY*headWidth/2},
		clr,
	)
}

// drawHUD lays out the title panel, the material panel and the status line
// above the board.
func (r *svgBoardRenderer) drawHUD(img *image.RGBA, pos *rules.Position, opts Options, boardRect image.Rectangle) {
	drawer := &font.Drawer{Dst: img, Face: r.face}

	title := strings.TrimSpace(opts.Title)
	if title == "" {
		title = "Chess"
	}
	status := strings.TrimSpace(opts.Status)
	if status == "" {
		status = pos.Turn().Name() + " to move"
	}
	material := formatMaterial(pos.Captured())

	statusBottom := boardRect.Min.Y - gapToBoard
	statusTop := statusBottom - statusHeight
	titleBottom := statusTop - panelGap
	titleTop := titleBottom - titleHeight

	materialWidth := max(materialMinWide, drawer.MeasureString(material).Round()+panelPaddingX*2)
	titleWidth := max(titleMinWidth, drawer.MeasureString(title).Round()+panelPaddingX*2)
	titleWidth = min(titleWidth, boardRect.Dx()-materialWidth-panelGap)
	statusWidth := min(boardRect.Dx(), drawer.MeasureString(status).Round()+panelPaddingX*2)

	titleRect := image.Rect(boardRect.Min.X, titleTop, boardRect.Min.X+titleWidth, titleBottom)
	materialRect := image.Rect(boardRect.Max.X-materialWidth, titleTop, boardRect.Max.X, titleBottom)
	statusLeft := boardRect.Min.X + (boardRect.Dx()-statusWidth)/2
	statusRect := image.Rect(statusLeft, statusTop, statusLeft+statusWidth, statusBottom)

	for _, rect := range []image.Rectangle{titleRect, materialRect, statusRect} {
		drawRoundedPanel(img, rect.Add(image.Pt(0, shadowOffsetY)), panelRadius, hudShadowColor)
	}
	drawRoundedPanel(img, titleRect, panelRadius, hudPanelColor)
	drawRoundedPanel(img, materialRect, panelRadius, hudPanelColor)
	drawRoundedPanel(img, statusRect, panelRadius, hudStatusColor)

	title = truncateWithEllipsis(r.face, title, titleRect.Dx()-panelPaddingX*2)
	status = truncateWithEllipsis(r.face, status, statusRect.Dx()-panelPaddingX*2)
	drawCenteredString(drawer, titleRect, title, hudTextPrimary)
	drawCenteredString(drawer, materialRect, material, hudTextPrimary)
	drawCenteredString(drawer, statusRect, status, hudStatusText)
}

// formatMaterial is White's material lead from captured pieces, e.g. "+3".
func formatMaterial(c rules.Captured) string {
	diff := 0
	for kind, n := range c.Black {
		if kind < len(pieceValues) {
			diff += n * pieceValues[kind]
		}
	}
	for kind, n := range c.White {
		if kind < len(pieceValues) {
			diff -= n * pieceValues[kind]
		}
	}
	if diff == 0 {
		return "="
	}
	return fmt.Sprintf("%+d", diff)
}

func (r *svgBoardRenderer) drawCoordinates(dst imagedraw.Image, geo geometry) {
	drawer := &font.Drawer{Dst: dst, Face: r.face, Src: image.NewUniform(coordinateTextColor)}
	ascent := r.face.Metrics().Ascent.Ceil()
	for i := 0; i < 8; i++ {
		rank := geo.rect(rules.NewSquare(0, i))
		drawCenteredText(drawer, fmt.Sprintf("%d", i+1), geo.origin.X-sideMargin/2, rank.Min.Y+squareSize/2+ascent/2)
		file := geo.rect(rules.NewSquare(i, 0))
		drawCenteredText(drawer, string(rune('a'+i)), file.Min.X+squareSize/2, geo.origin.Y+boardSize+ascent+4)
	}
}

func truncateWithEllipsis(face font.Face, text string, maxWidth int) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || maxWidth <= 0 || face == nil {
		return trimmed
	}
	drawer := font.Drawer{Face: face}
	if drawer.MeasureString(trimmed).Round() <= maxWidth {
		return trimmed
	}
	const ellipsis = "..."
	if drawer.MeasureString(ellipsis).Round() > maxWidth {
		return ""
	}
	runes := []rune(trimmed)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := string(runes) + ellipsis
		if drawer.MeasureString(candidate).Round() <= maxWidth {
			return candidate
		}
	}
	return ellipsis
}

func drawCenteredString(drawer *font.Drawer, rect image.Rectangle, text string, clr color.Color) {
	text = strings.TrimSpace(text)
	if drawer == nil || text == "" {
		return
	}
	metrics := drawer.Face.Metrics()
	width := drawer.MeasureString(text).Round()
	x := max(rect.Min.X, rect.Min.X+(rect.Dx()-width)/2)
	baseline := rect.Min.Y + (rect.Dy()+metrics.Ascent.Ceil()-metrics.Descent.Ceil())/2
	drawer.Src = image.NewUniform(clr)
	drawer.Dot = fixed.P(x, baseline)
	drawer.DrawString(text)
}

func drawCenteredText(drawer *font.Drawer, text string, centerX, baseline int) {
	if text == "" {
		return
	}
	width := drawer.MeasureString(text).Round()
	drawer.Dot = fixed.P(centerX-width/2, baseline)
	drawer.DrawString(text)
}
