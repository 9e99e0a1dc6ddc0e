//
// Adam7 interlacing geometry
//
// PNG Second Edition, interlace method 1
// https://www.w3.org/TR/2003/REC-PNG-20031110/#8Interlace
//

package pngstream

// adam7Pass gives the first pixel and the step of one pass.
type adam7Pass struct {
	X0, Y0, DX, DY int
}

var adam7Passes = [7]adam7Pass{
	{0, 0, 8, 8},
	{4, 0, 8, 8},
	{0, 4, 4, 8},
	{2, 0, 4, 4},
	{0, 2, 2, 4},
	{1, 0, 2, 2},
	{0, 1, 1, 2},
}

// deinterlacer walks the reduced images of an interlaced image in file order.
type deinterlacer struct {
	info ImageInfo

	pass   int // 1..7, 8 once done
	subRow int // row within the current pass

	// geometry of the current pass
	cols, rows int
	x0, dx     int
	y0, dy     int
}

func newDeinterlacer(info ImageInfo) *deinterlacer {
	d := &deinterlacer{info: info}
	d.setPass(1)
	return d
}

// passSize is the size of the reduced image of pass p (1-based).
func passSize(info ImageInfo, p int) (cols, rows int) {
	ps := adam7Passes[p-1]
	if info.Cols > ps.X0 {
		cols = (info.Cols - ps.X0 + ps.DX - 1) / ps.DX
	}
	if info.Rows > ps.Y0 {
		rows = (info.Rows - ps.Y0 + ps.DY - 1) / ps.DY
	}
	return
}

func (d *deinterlacer) setPass(p int) {
	d.pass = p
	d.subRow = 0
	if p > 7 {
		d.cols, d.rows = 0, 0
		return
	}
	ps := adam7Passes[p-1]
	d.x0, d.dx, d.y0, d.dy = ps.X0, ps.DX, ps.Y0, ps.DY
	d.cols, d.rows = passSize(d.info, p)
}

// skipEmpty advances past passes that hold no pixels. Returns false when all
// passes are consumed.
func (d *deinterlacer) skipEmpty() bool {
	for d.pass <= 7 && (d.cols == 0 || d.rows == 0) {
		d.setPass(d.pass + 1)
	}
	return d.pass <= 7
}

// next moves to the following sub-row; it reports whether a new pass began.
func (d *deinterlacer) next() (newPass bool) {
	d.subRow++
	if d.subRow < d.rows {
		return false
	}
	d.setPass(d.pass + 1)
	d.skipEmpty()
	return true
}

func (d *deinterlacer) done() bool { return d.pass > 7 }

// realRow is the image row of the current sub-row.
func (d *deinterlacer) realRow() int { return d.y0 + d.subRow*d.dy }

// realCol is the image column of sub-column c.
func (d *deinterlacer) realCol(c int) int { return d.x0 + c*d.dx }

// bytesPerSubRow is the stored size of one sub-row, without filter byte.
func (d *deinterlacer) bytesPerSubRow() int {
	return (d.info.BitsPerPixel*d.cols + 7) / 8
}

// merge scatters the samples of the current sub-row into a full raster row.
func (d *deinterlacer) merge(sub []int, dst []int) {
	ch := d.info.Channels
	for c := 0; c < d.cols; c++ {
		copy(dst[d.realCol(c)*ch:(d.realCol(c)+1)*ch], sub[c*ch:(c+1)*ch])
	}
}
