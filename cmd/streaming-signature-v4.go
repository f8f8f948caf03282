// Copyright (c) 2015-2025 Cask Contributors.
//
// This file is part of Cask Object Storage stack
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package cmd This file implements a decoder for the aws-chunked payload
// framing used with the streaming signature process described at
// http://docs.aws.amazon.com/AmazonS3/latest/API/sigv4-streaming.html
package cmd

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
)

// Streaming signature constants.
const (
	streamingContentSHA256 = "STREAMING-AWS4-HMAC-SHA256-PAYLOAD"
	streamingContentCoding = "aws-chunked"
)

// errSignatureMismatch means the chunk framing carried a malformed
// signature line.
var errSignatureMismatch = errors.New("chunk signature does not match the expected form")

// errMalformedEncoding means the chunk framing itself was broken.
var errMalformedEncoding = errors.New("malformed chunked encoding")

// errPayloadHashMismatch means the body digest diverged from the
// x-amz-content-sha256 the signature committed to.
var errPayloadHashMismatch = errors.New("payload checksum does not match x-amz-content-sha256")

// isRequestSignStreamingV4 detects a streaming signed payload. The chunk
// framing only applies when the seed signature committed to it.
func isRequestSignStreamingV4(r *http.Request) bool {
	return r.Header.Get("X-Amz-Content-Sha256") == streamingContentSHA256 &&
		r.Method == http.MethodPut
}

// newSignV4ChunkedReader returns a new s3ChunkedReader that translates the
// data read from r out of HTTP "aws-chunked" format before returning it.
// The s3ChunkedReader returns io.EOF when the final 0-length chunk is read.
//
// Chunk signatures are syntactically validated but not cryptographically
// verified; the seed signature over the headers already authenticated the
// request.
func newSignV4ChunkedReader(req *http.Request) io.ReadCloser {
	return &s3ChunkedReader{
		reader: bufio.NewReader(req.Body),
		state:  readChunkHeader,
	}
}

// Represents the overall state that is required for decoding a
// AWS Signature V4 chunked reader.
type s3ChunkedReader struct {
	reader *bufio.Reader
	state  chunkState
	n      uint64 // Unread bytes in chunk
	err    error
}

// Read chunk reads the chunk token signature portion.
func (cr *s3ChunkedReader) readS3ChunkHeader() {
	// Read the first chunk line until CRLF.
	var hexChunkSize, hexChunkSignature []byte
	hexChunkSize, hexChunkSignature, cr.err = readChunkLine(cr.reader)
	if cr.err != nil {
		return
	}
	// <hex>;token=value - converts the hex into its uint64 form.
	cr.n, cr.err = parseHexUint(hexChunkSize)
	if cr.err != nil {
		return
	}
	if cr.n == 0 {
		cr.err = io.EOF
	}
	// A chunk signature is a 64 character hex string.
	if len(hexChunkSignature) != 64 {
		cr.err = errSignatureMismatch
		return
	}
	if _, e := hex.DecodeString(string(hexChunkSignature)); e != nil {
		cr.err = errSignatureMismatch
	}
}

type chunkState int

const (
	readChunkHeader chunkState = iota
	readChunkTrailer
	readChunk
	eofChunk
)

func (cs chunkState) String() string {
	stateString := ""
	switch cs {
	case readChunkHeader:
		stateString = "readChunkHeader"
	case readChunkTrailer:
		stateString = "readChunkTrailer"
	case readChunk:
		stateString = "readChunk"
	case eofChunk:
		stateString = "eofChunk"
	}
	return stateString
}

func (cr *s3ChunkedReader) Close() (err error) {
	return nil
}

// Read - implements `io.Reader`, which transparently decodes
// the incoming AWS Signature V4 streaming chunks.
func (cr *s3ChunkedReader) Read(buf []byte) (n int, err error) {
	for {
		switch cr.state {
		case readChunkHeader:
			cr.readS3ChunkHeader()
			if cr.n == 0 && cr.err == io.EOF {
				cr.state = readChunkTrailer
				continue
			}
			if cr.err != nil {
				return 0, cr.err
			}
			cr.state = readChunk
		case readChunkTrailer:
			cr.err = readCRLF(cr.reader)
			if cr.err != nil && cr.err != io.EOF {
				return 0, errMalformedEncoding
			}
			cr.state = eofChunk
		case readChunk:
			// There is no more space left in the request buffer.
			if len(buf) == 0 {
				return n, nil
			}
			rbuf := buf
			// The request buffer is larger than the current chunk size.
			// Read only the current chunk from the underlying reader.
			if uint64(len(rbuf)) > cr.n {
				rbuf = rbuf[:cr.n]
			}
			var n0 int
			n0, cr.err = cr.reader.Read(rbuf)
			if cr.err != nil {
				// We have lesser than chunk size advertised in chunkHeader, this is 'unexpected'.
				if cr.err == io.EOF {
					cr.err = io.ErrUnexpectedEOF
				}
				return 0, cr.err
			}

			buf = buf[n0:]
			n += n0
			cr.n -= uint64(n0)

			// If we're at the end of a chunk.
			if cr.n == 0 {
				cr.err = readCRLF(cr.reader)
				if cr.err != nil {
					return 0, errMalformedEncoding
				}
				cr.state = readChunkHeader
				continue
			}
		case eofChunk:
			return n, io.EOF
		}
	}
}

// readCRLF - check if reader only has '\r\n' CRLF character.
// returns malformed encoding if it doesn't.
func readCRLF(reader io.Reader) error {
	buf := make([]byte, 2)
	_, err := io.ReadFull(reader, buf)
	if err != nil {
		return err
	}
	if buf[0] != '\r' || buf[1] != '\n' {
		return errMalformedEncoding
	}
	return nil
}

// Read a line of bytes (up to \n) from b.
// Give up if the line exceeds the buffer size.
// The returned bytes are owned by the bufio.Reader
// so they are only valid until the next bufio read.
func readChunkLine(b *bufio.Reader) ([]byte, []byte, error) {
	buf, err := b.ReadSlice('\n')
	if err != nil {
		// We always know when EOF is coming.
		// If the caller asked for a line, there should be a line.
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		} else if err == bufio.ErrBufferFull {
			err = errLineTooLong
		}
		return nil, nil, err
	}

	hexChunkSize, hexChunkSignature := parseS3ChunkExtension(buf)
	return hexChunkSize, hexChunkSignature, nil
}

// trimTrailingWhitespace - trim trailing white space.
func trimTrailingWhitespace(b []byte) []byte {
	for len(b) > 0 && isASCIISpace(b[len(b)-1]) {
		b = b[:len(b)-1]
	}
	return b
}

// isASCIISpace - is ascii space?
func isASCIISpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// Constant s3ChunkSignature - chunk signature without
// client side calculated signature.
const s3ChunkSignatureStr = ";chunk-signature="

// parses starting chunk signature.
func parseS3ChunkExtension(buf []byte) ([]byte, []byte) {
	buf = trimTrailingWhitespace(buf)
	semi := bytes.Index(buf, []byte(s3ChunkSignatureStr))
	// Chunk signature not found, return the whole buffer.
	if semi == -1 {
		return buf, nil
	}
	return buf[:semi], buf[semi+len(s3ChunkSignatureStr):]
}

// parse hex to uint64.
func parseHexUint(v []byte) (n uint64, err error) {
	for i, b := range v {
		switch {
		case '0' <= b && b <= '9':
			b -= '0'
		case 'a' <= b && b <= 'f':
			b = b - 'a' + 10
		case 'A' <= b && b <= 'F':
			b = b - 'A' + 10
		default:
			return 0, errors.New("invalid byte in chunk length")
		}
		if i == 16 {
			return 0, errors.New("http chunk length too large")
		}
		n <<= 4
		n |= uint64(b)
	}
	return
}

// errLineTooLong chunk header line exceeded the read buffer.
var errLineTooLong = errors.New("header line too long")

// toChunkedReadError translates decoder failures surfacing from a body
// read into API error carriers; anything else stays an internal error.
func toChunkedReadError(err error) error {
	switch {
	case errors.Is(err, errSignatureMismatch):
		return errS3(ErrSignatureDoesNotMatch, "chunk signature malformed")
	case errors.Is(err, errPayloadHashMismatch):
		return errS3(ErrSignatureDoesNotMatch, "request body does not match x-amz-content-sha256")
	case errors.Is(err, errMalformedEncoding), errors.Is(err, errLineTooLong):
		return errS3(ErrInvalidRequest, "malformed aws-chunked body")
	default:
		return errS3(ErrInternalError, "reading request body: %v", err)
	}
}
