// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package geoip resolves client IPs to countries using a MaxMind
// GeoLite2-Country database. Without a database only private and loopback
// addresses are classified.
package geoip

import (
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/oschwald/maxminddb-golang"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// LocalCode is reported for private and loopback addresses.
const LocalCode = "LOCAL"

var privateCIDRs []*net.IPNet

func init() {
	privateBlocks := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"100.64.0.0/10", // carrier-grade NAT
		"fc00::/7",      // IPv6 unique local
		"fe80::/10",     // IPv6 link-local
	}

	for _, block := range privateBlocks {
		_, cidr, err := net.ParseCIDR(block)
		if err == nil {
			privateCIDRs = append(privateCIDRs, cidr)
		}
	}
}

// Location is the geographic data attached to a session.
type Location struct {
	CountryCode string `json:"country_code,omitempty"`
	Country     string `json:"country,omitempty"`
	Continent   string `json:"continent,omitempty"`
}

// Lookup handles IP to country lookup. It is safe for concurrent use and the
// database can be swapped at runtime with Reload.
type Lookup struct {
	db        *maxminddb.Reader
	dbPath    string
	dbModTime time.Time
	enabled   bool
	mu        sync.RWMutex
}

// geoRecord matches the GeoLite2-Country database structure.
type geoRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
	Continent struct {
		Code string `maxminddb:"code"`
	} `maxminddb:"continent"`
}

// NewLookup creates a lookup backed by the database at dbPath. An empty path
// disables database lookups. A missing or unreadable file returns an error
// together with a usable, database-less Lookup.
func NewLookup(dbPath string) (*Lookup, error) {
	g := &Lookup{dbPath: dbPath}
	if dbPath == "" {
		return g, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g, g.loadDatabase()
}

// loadDatabase loads or reloads the MaxMind database.
// Caller must hold g.mu write lock.
func (g *Lookup) loadDatabase() error {
	info, err := os.Stat(g.dbPath)
	if err != nil {
		g.enabled = false
		if os.IsNotExist(err) {
			return fmt.Errorf("GeoIP database not found: %s", g.dbPath)
		}
		return fmt.Errorf("GeoIP database stat error: %w", err)
	}

	if g.db != nil && info.ModTime().Equal(g.dbModTime) {
		return nil
	}

	db, err := maxminddb.Open(g.dbPath)
	if err != nil {
		return fmt.Errorf("opening GeoIP database: %w", err)
	}

	if g.db != nil {
		_ = g.db.Close()
	}
	g.db = db
	g.dbModTime = info.ModTime()
	g.enabled = true

	return nil
}

// Reload reopens the database if the file has changed since it was loaded.
func (g *Lookup) Reload() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.dbPath == "" {
		return nil
	}

	return g.loadDatabase()
}

// Locate returns the location of an IP address. Private and loopback
// addresses are LocalCode. Unknown or invalid addresses give a zero Location.
func (g *Lookup) Locate(ip string) Location {
	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		return Location{}
	}

	if parsedIP.IsLoopback() || isPrivateIP(parsedIP) {
		return Location{CountryCode: LocalCode, Country: CountryName(LocalCode)}
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	if !g.enabled || g.db == nil {
		return Location{}
	}

	var record geoRecord
	if err := g.db.Lookup(parsedIP, &record); err != nil || record.Country.ISOCode == "" {
		return Location{}
	}

	return Location{
		CountryCode: record.Country.ISOCode,
		Country:     CountryName(record.Country.ISOCode),
		Continent:   record.Continent.Code,
	}
}

// IsEnabled returns whether database lookups are available.
func (g *Lookup) IsEnabled() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.enabled
}

// Close closes the GeoIP database.
func (g *Lookup) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.db != nil {
		err := g.db.Close()
		g.db = nil
		g.enabled = false
		return err
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	for _, cidr := range privateCIDRs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

var regionNamer = display.English.Regions()

// CountryName returns the English name for a 2-letter country code.
func CountryName(code string) string {
	switch code {
	case "":
		return "Unknown"
	case LocalCode:
		return "Local Network"
	}

	region, err := language.ParseRegion(code)
	if err != nil {
		return code
	}
	if name := regionNamer.Name(region); name != "" {
		return name
	}
	return code
}
