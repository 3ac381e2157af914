// Package progress counts bytes flowing through a reader.
package progress

import "io"

// Reader wraps an io.Reader, counts bytes read and reports every interval
// bytes through OnProgress.
type Reader struct {
	reader     io.Reader
	total      int64
	interval   int64
	onProgress func(read, total int64)

	read       int64
	sinceCheck int64
}

// NewReader wraps r. total is the expected size, or -1 when unknown. A nil
// callback only counts.
func NewReader(r io.Reader, total, interval int64, cb func(read, total int64)) *Reader {
	return &Reader{
		reader:     r,
		total:      total,
		interval:   interval,
		onProgress: cb,
	}
}

func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.read += int64(n)
		pr.sinceCheck += int64(n)

		if pr.onProgress != nil && pr.interval > 0 && pr.sinceCheck >= pr.interval {
			pr.onProgress(pr.read, pr.total)
			pr.sinceCheck = 0
		}
	}

	return n, err
}

// BytesRead returns the number of bytes read so far.
func (pr *Reader) BytesRead() int64 {
	return pr.read
}
