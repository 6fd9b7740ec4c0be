package apple

import (
	"errors"
	"fmt"
)

// rawSignatureLen is the JOSE form for ES256: r and s, 32 bytes each,
// big-endian, concatenated.
const rawSignatureLen = 64

// derToRaw converts a DER-encoded ECDSA signature
//
//	0x30 [len] 0x02 [rlen] r-bytes 0x02 [slen] s-bytes
//
// into the fixed 64-byte r||s form. DER pads an integer whose high bit is
// set with one leading zero byte to keep it non-negative; that byte is
// stripped. Integers shorter than 32 bytes are left-padded with zeros so the
// big-endian value is preserved.
func derToRaw(der []byte) ([]byte, error) {
	if len(der) < 8 {
		return nil, errors.New("apple: der signature too short")
	}
	if der[0] != 0x30 {
		return nil, fmt.Errorf("apple: der: expected sequence tag, got 0x%02x", der[0])
	}
	// Sequence length. P-256 signatures always fit short form, but a
	// long-form prefix byte must not be silently misread as a length.
	i := 1
	seqLen := int(der[i])
	i++
	if seqLen&0x80 != 0 {
		n := seqLen & 0x7f
		if n == 0 || n > 2 || i+n > len(der) {
			return nil, errors.New("apple: der: unsupported sequence length encoding")
		}
		seqLen = 0
		for j := 0; j < n; j++ {
			seqLen = seqLen<<8 | int(der[i])
			i++
		}
	}
	if i+seqLen != len(der) {
		return nil, errors.New("apple: der: sequence length mismatch")
	}

	r, i, err := readDERInt(der, i)
	if err != nil {
		return nil, err
	}
	s, i, err := readDERInt(der, i)
	if err != nil {
		return nil, err
	}
	if i != len(der) {
		return nil, errors.New("apple: der: trailing bytes")
	}

	out := make([]byte, rawSignatureLen)
	if err := padInto(out[:32], r); err != nil {
		return nil, fmt.Errorf("apple: der: r: %w", err)
	}
	if err := padInto(out[32:], s); err != nil {
		return nil, fmt.Errorf("apple: der: s: %w", err)
	}
	return out, nil
}

// readDERInt reads one length-prefixed INTEGER starting at offset i and
// returns its bytes with at most one leading zero stripped.
func readDERInt(der []byte, i int) ([]byte, int, error) {
	if i+2 > len(der) {
		return nil, 0, errors.New("apple: der: truncated integer header")
	}
	if der[i] != 0x02 {
		return nil, 0, fmt.Errorf("apple: der: expected integer tag, got 0x%02x", der[i])
	}
	i++
	n := int(der[i])
	i++
	if n&0x80 != 0 {
		return nil, 0, errors.New("apple: der: long-form integer length not valid for P-256")
	}
	if n == 0 || i+n > len(der) {
		return nil, 0, errors.New("apple: der: truncated integer body")
	}
	v := der[i : i+n]
	if len(v) > 1 && v[0] == 0x00 {
		v = v[1:]
	}
	return v, i + n, nil
}

// padInto left-pads v into dst so the numeric value keeps its place value.
func padInto(dst, v []byte) error {
	if len(v) > len(dst) {
		return fmt.Errorf("integer too large: %d bytes", len(v))
	}
	copy(dst[len(dst)-len(v):], v)
	return nil
}
