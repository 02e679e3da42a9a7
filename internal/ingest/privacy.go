// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package ingest

import (
	"encoding/hex"
	"net"

	"golang.org/x/crypto/blake2b"
)

// anonymizeIP masks the IP address for privacy.
// For IPv4: zeros the last octet (e.g., 192.168.1.100 -> 192.168.1.0)
// For IPv6: zeros the last 80 bits
func anonymizeIP(ip string) string {
	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		return ""
	}

	if ipv4 := parsedIP.To4(); ipv4 != nil {
		ipv4[3] = 0
		return ipv4.String()
	}

	ipv6 := parsedIP.To16()
	if ipv6 == nil {
		return ""
	}
	for i := 6; i < 16; i++ {
		ipv6[i] = 0
	}
	return ipv6.String()
}

// fingerprint derives a stable visitor id from the anonymized IP and user
// agent, keyed with the server salt so ids cannot be recomputed offline.
func fingerprint(salt []byte, ip, userAgent string) string {
	// blake2b only rejects keys over 64 bytes; newFingerprintKey guarantees that.
	h, _ := blake2b.New(16, salt)
	h.Write([]byte(anonymizeIP(ip)))
	h.Write([]byte{0})
	h.Write([]byte(userAgent))
	return "fp-" + hex.EncodeToString(h.Sum(nil))
}

// newFingerprintKey reduces an arbitrary salt to a 32-byte blake2b key.
func newFingerprintKey(salt string) []byte {
	sum := blake2b.Sum256([]byte(salt))
	return sum[:]
}
