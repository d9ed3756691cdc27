// Package refsource feeds reference-corpus sequences into the aligner
// core: a Source yields one ReferenceRecord at a time, reading from a local
// file or an S3 object. The local source streams its file; the S3 source
// downloads the whole object into memory before scanning it. Both scan
// in the same spirit as encoding/fasta's FASTA scanner but
// exposed as a pull iterator rather than an indexed random-access handle
// (the aligner core only ever needs to stream references once per run).
package refsource

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// ReferenceRecord is one named reference sequence.
type ReferenceRecord struct {
	Name string
	Bases []byte
}

// Source yields reference records one at a time. Next returns io.EOF (with
// a zero ReferenceRecord) once the source is exhausted.
type Source interface {
	Next() (ReferenceRecord, error)
	Close() error
}

// fastaScanner implements the shared line-oriented FASTA scan loop used by
// both the local-file and the S3 sources, which differ only in how they
// obtain their io.ReadCloser, mirroring encoding/fasta.fasta's parser
// generalized from random access to a streaming, one-pass scan.
type fastaScanner struct {
	rc   io.ReadCloser
	r    *bufio.Reader
	next string // header line already consumed while scanning the previous record's body.
	done bool
}

func newFastaScanner(rc io.ReadCloser) *fastaScanner {
	return &fastaScanner{rc: rc, r: bufio.NewReaderSize(rc, 1<<20)}
}

func (s *fastaScanner) Close() error { return s.rc.Close() }

// Next scans forward to the next ">name" header (or uses one already
// buffered from the previous call) and accumulates body lines until the
// following header or EOF.
func (s *fastaScanner) Next() (ReferenceRecord, error) {
	if s.done {
		return ReferenceRecord{}, io.EOF
	}

	header := s.next
	s.next = ""
	if header == "" {
		for {
			line, err := s.readLine()
			if err != nil {
				s.done = true
				return ReferenceRecord{}, io.EOF
			}
			if strings.HasPrefix(line, ">") {
				header = line
				break
			}
		}
	}

	name := strings.Fields(strings.TrimPrefix(header, ">"))
	if len(name) == 0 {
		return ReferenceRecord{}, errors.Errorf("refsource: empty sequence name in header %q", header)
	}

	var body bytes.Buffer
	for {
		line, err := s.readLine()
		if err != nil {
			s.done = true
			break
		}
		if strings.HasPrefix(line, ">") {
			s.next = line
			break
		}
		body.WriteString(line)
	}
	return ReferenceRecord{Name: name[0], Bases: body.Bytes()}, nil
}

func (s *fastaScanner) readLine() (string, error) {
	line, err := s.r.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
