// Package codec implements the subset of the RFC 1035 wire format the
// local proxy needs: building A queries, recovering the queried name
// from raw query bytes, harvesting A answers from a response, and
// synthesizing answers on top of an original query packet.
//
// All functions are pure and operate on byte slices only. Parsing is
// deliberately best-effort: DNS packets arrive from the network and
// truncated or adversarial input must never panic.
package codec

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"net"
	"strings"
)

// Header layout, https://datatracker.ietf.org/doc/html/rfc1035#section-4.1.1
const (
	HeaderSize = 12  // fixed DNS message header
	MaxUDPSize = 512 // practical UDP query ceiling, RFC 1035 2.3.4

	maxLabelSize = 63

	flagsOffset   = 2
	qdcountOffset = 4
	ancountOffset = 6

	qrBit = 0x80 // high bit of flags byte 1

	typeA   = 1
	classIN = 1

	rcodeServfail = 2

	// compressionMask marks a compression pointer: the two leading
	// bits of the length byte are 11, RFC 1035 4.1.4.
	compressionMask = 0xC0
)

var (
	// ErrShortMessage is returned for packets smaller than the header.
	ErrShortMessage = errors.New("dns message too short")
	// ErrBadName is returned for names that cannot be wire-encoded or decoded.
	ErrBadName = errors.New("invalid domain name")
)

// EncodeQuery builds a standard recursive A query for hostname with a
// random transaction id. Hostname labels must be non-empty ASCII and
// at most 63 bytes each.
func EncodeQuery(hostname string) ([]byte, error) {
	qname, err := packName(hostname)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, HeaderSize, HeaderSize+len(qname)+4)

	var id [2]byte
	if _, err := rand.Read(id[:]); err != nil {
		return nil, err
	}

	buf[0], buf[1] = id[0], id[1]
	binary.BigEndian.PutUint16(buf[flagsOffset:], 0x0100) // standard query, RD
	binary.BigEndian.PutUint16(buf[qdcountOffset:], 1)

	buf = append(buf, qname...)
	buf = binary.BigEndian.AppendUint16(buf, typeA)
	buf = binary.BigEndian.AppendUint16(buf, classIN)

	return buf, nil
}

// ExtractHostname reads the question name out of a raw query packet.
// Malformed input is a hard failure, there is no partial hostname.
func ExtractHostname(query []byte) (string, error) {
	if len(query) < HeaderSize {
		return "", ErrShortMessage
	}

	var labels []string

	off := HeaderSize
	for {
		if off >= len(query) {
			return "", ErrBadName
		}

		l := int(query[off])
		if l == 0 {
			break
		}
		if l > maxLabelSize || off+1+l > len(query) {
			return "", ErrBadName
		}

		labels = append(labels, string(query[off+1:off+1+l]))
		off += 1 + l
	}

	if len(labels) == 0 {
		return "", ErrBadName
	}

	return strings.Join(labels, "."), nil
}

// ParseResponse collects the IPv4 answers of a raw response packet as
// dotted-decimal strings. Non-A records are skipped. A truncated
// packet yields whatever answers were parsed before the cut, never an
// error.
func ParseResponse(resp []byte) []string {
	if len(resp) < HeaderSize {
		return nil
	}

	qdcount := int(binary.BigEndian.Uint16(resp[qdcountOffset:]))
	ancount := int(binary.BigEndian.Uint16(resp[ancountOffset:]))

	off := HeaderSize

	for i := 0; i < qdcount; i++ {
		var ok bool
		off, ok = skipName(resp, off)
		if !ok || off+4 > len(resp) {
			return nil
		}
		off += 4 // QTYPE + QCLASS
	}

	var addrs []string

	for i := 0; i < ancount; i++ {
		var ok bool
		off, ok = skipName(resp, off)
		if !ok || off+10 > len(resp) {
			return addrs
		}

		rtype := binary.BigEndian.Uint16(resp[off:])
		rdlen := int(binary.BigEndian.Uint16(resp[off+8:]))
		off += 10 // TYPE + CLASS + TTL + RDLENGTH

		if off+rdlen > len(resp) {
			return addrs
		}

		if rtype == typeA && rdlen == net.IPv4len {
			addrs = append(addrs, net.IP(resp[off:off+4]).String())
		}

		off += rdlen
	}

	return addrs
}

// SynthesizeResponse builds a response packet for the given original
// query: same id, QR set, the original question copied verbatim, and
// one compressed-name A answer per IPv4 address. Addresses that are
// not IPv4 literals cannot be encoded and are skipped.
func SynthesizeResponse(query []byte, addrs []string, ttl uint32) ([]byte, error) {
	qend, err := questionEnd(query)
	if err != nil {
		return nil, err
	}

	resp := make([]byte, qend, qend+len(addrs)*16)
	copy(resp, query[:qend])
	resp[flagsOffset] |= qrBit

	var count uint16
	for _, addr := range addrs {
		ip := net.ParseIP(addr)
		if ip == nil {
			continue
		}
		ip4 := ip.To4()
		if ip4 == nil {
			continue
		}

		resp = append(resp, 0xC0, HeaderSize) // pointer to the question name
		resp = binary.BigEndian.AppendUint16(resp, typeA)
		resp = binary.BigEndian.AppendUint16(resp, classIN)
		resp = binary.BigEndian.AppendUint32(resp, ttl)
		resp = binary.BigEndian.AppendUint16(resp, net.IPv4len)
		resp = append(resp, ip4...)

		count++
	}

	binary.BigEndian.PutUint16(resp[ancountOffset:], count)

	return resp, nil
}

// SynthesizeServfail flips a copy of the original query into a
// SERVFAIL response.
func SynthesizeServfail(query []byte) ([]byte, error) {
	if len(query) < HeaderSize {
		return nil, ErrShortMessage
	}

	resp := make([]byte, len(query))
	copy(resp, query)

	resp[flagsOffset] |= qrBit
	resp[flagsOffset+1] = resp[flagsOffset+1]&0xF0 | rcodeServfail

	return resp, nil
}

// packName encodes hostname as length-prefixed labels with a zero
// terminator.
func packName(hostname string) ([]byte, error) {
	hostname = strings.TrimSuffix(hostname, ".")
	if hostname == "" {
		return nil, ErrBadName
	}

	buf := make([]byte, 0, len(hostname)+2)

	for _, label := range strings.Split(hostname, ".") {
		if len(label) == 0 || len(label) > maxLabelSize {
			return nil, ErrBadName
		}
		for i := 0; i < len(label); i++ {
			if label[i] > 0x7F {
				return nil, ErrBadName
			}
		}

		buf = append(buf, byte(len(label)))
		buf = append(buf, label...)
	}

	return append(buf, 0), nil
}

// skipName advances past a possibly compressed name starting at off.
// Compression pointers end the name, they are not followed.
func skipName(b []byte, off int) (int, bool) {
	for {
		if off >= len(b) {
			return 0, false
		}

		l := int(b[off])

		if l&compressionMask == compressionMask {
			if off+2 > len(b) {
				return 0, false
			}
			return off + 2, true
		}

		if l == 0 {
			return off + 1, true
		}

		if off+1+l > len(b) {
			return 0, false
		}
		off += 1 + l
	}
}

// questionEnd returns the offset one past the first question section
// of a query packet.
func questionEnd(query []byte) (int, error) {
	if len(query) < HeaderSize {
		return 0, ErrShortMessage
	}

	off, ok := skipName(query, HeaderSize)
	if !ok || off+4 > len(query) {
		return 0, ErrBadName
	}

	return off + 4, nil
}
