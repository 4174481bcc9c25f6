package record

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// fingerprintDomain separates record fingerprints from other hashes.
const fingerprintDomain = "outline/record/v1"

// Canonical returns the RFC 8785 canonical JSON encoding of r: keys in
// sorted order, unset fields omitted, NFC-normalised strings, no HTML
// escaping.
func (r Record) Canonical() []byte {
	var buf bytes.Buffer
	buf.WriteByte('{')
	buf.WriteString(`"id":`)
	buf.Write(canonicalString(r.ID))
	if r.ParentID != nil {
		buf.WriteString(`,"parentID":`)
		buf.Write(canonicalString(*r.ParentID))
	}
	buf.WriteString(`,"position":`)
	buf.WriteString(strconv.Itoa(r.Position))
	if r.State != nil {
		buf.WriteString(`,"state":`)
		buf.WriteString(strconv.Itoa(int(*r.State)))
	}
	if r.Tag != nil {
		buf.WriteString(`,"tag":`)
		buf.WriteString(strconv.Itoa(int(*r.Tag)))
	}
	if r.Text != nil {
		buf.WriteString(`,"text":`)
		buf.Write(canonicalString(*r.Text))
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

// Fingerprint returns a content hash of r.
// Format: hex(SHA256(domain + 0x00 + canonical JSON)).
func (r Record) Fingerprint() string {
	h := sha256.New()
	h.Write([]byte(fingerprintDomain))
	h.Write([]byte{0x00})
	h.Write(r.Canonical())
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalString encodes s as a JSON string after NFC normalisation.
func canonicalString(s string) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Encoding a string cannot fail.
	_ = enc.Encode(norm.NFC.String(s))
	return unescapeLineSeparators(bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}))
}

// unescapeLineSeparators turns the \u2028 and \u2029 escapes emitted by
// encoding/json back into literal characters, which RFC 8785 requires.
// Escape sequences are consumed pairwise so an escaped backslash followed
// by "u2028" is left alone.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] != '\\' || i+1 >= len(data) {
			out = append(out, data[i])
			continue
		}
		if data[i+1] == 'u' && i+5 < len(data) && string(data[i+2:i+5]) == "202" {
			switch data[i+5] {
			case '8':
				out = append(out, "\u2028"...)
				i += 5
				continue
			case '9':
				out = append(out, "\u2029"...)
				i += 5
				continue
			}
		}
		out = append(out, data[i], data[i+1])
		i++
	}
	return out
}
