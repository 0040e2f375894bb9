package api

import "io"

// progressReader reports how much of a body of known size has been read, as
// a whole percentage. It only reports when the percentage changes.
type progressReader struct {
	r        io.Reader
	total    int64
	read     int64
	last     int
	onChange func(int)
}

func newProgressReader(r io.Reader, total int64, onChange func(int)) *progressReader {
	return &progressReader{r: r, total: total, last: -1, onChange: onChange}
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	p.read += int64(n)

	percent := 100
	if p.total > 0 {
		percent = int(p.read * 100 / p.total)
	}
	if percent > 100 {
		percent = 100
	}
	if percent != p.last && (n > 0 || err == io.EOF) {
		p.last = percent
		p.onChange(percent)
	}
	return n, err
}
