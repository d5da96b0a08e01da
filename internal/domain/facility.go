package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SourceKind classifies where a facility's detail page lives. The kind
// decides how the page is scraped; blog-style sources publish timetables as
// images and need OCR on top of the text scrape.
type SourceKind string

const (
	SourceWeb          SourceKind = "web"
	SourceNaverBlog    SourceKind = "naver_blog"
	SourceNaverCafe    SourceKind = "naver_cafe"
	SourceInstagram    SourceKind = "instagram"
	SourceKakaoChannel SourceKind = "kakao_channel"
	SourceDaumCafe     SourceKind = "daum_cafe"
	SourceNone         SourceKind = "none"
)

// GeoPoint is a GeoJSON Point, longitude first, as stored in MongoDB for
// 2dsphere indexing.
type GeoPoint struct {
	Type        string    `bson:"type" json:"type"`
	Coordinates []float64 `bson:"coordinates" json:"coordinates"` // [lng, lat]
}

// NewGeoPoint builds a GeoJSON Point from a lat/lng pair.
func NewGeoPoint(lat, lng float64) *GeoPoint {
	return &GeoPoint{Type: "Point", Coordinates: []float64{lng, lat}}
}

// Facility is one place offering free-swim sessions, keyed by PoolCode.
// Created during a discovery pass and enriched (address, geocode, source
// kind) in later passes. Facilities are never hard-deleted by the pipeline,
// only flagged via IsOperating.
type Facility struct {
	PoolCode    string     `bson:"pool_code" json:"pool_code"`
	Title       string     `bson:"title,omitempty" json:"title,omitempty"`
	Address     string     `bson:"address,omitempty" json:"address,omitempty"`
	SourceID    string     `bson:"source_id,omitempty" json:"source_id,omitempty"`
	URL         string     `bson:"url,omitempty" json:"url,omitempty"`
	SourceKind  SourceKind `bson:"source_kind" json:"source_kind"`
	Location    *GeoPoint  `bson:"location,omitempty" json:"location,omitempty"`
	IsOperating bool       `bson:"is_operating" json:"is_operating"`
	CreatedAt   time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at" json:"updated_at"`
}

// NearbyFacility is a facility annotated with its spherical distance from a
// query point, as returned by proximity lookups.
type NearbyFacility struct {
	Facility       `bson:",inline"`
	DistanceMeters float64 `bson:"distance_m" json:"distance_m"`
}

// HasSource reports whether the facility has a usable detail page. The
// refinement pass skips facilities without one.
func (f Facility) HasSource() bool {
	return f.IsOperating && strings.TrimSpace(f.URL) != "" && f.SourceKind != SourceNone
}

// WantsOCR reports whether the facility's source kind publishes timetables
// as images, so the scrape should be supplemented with OCR text.
func (f Facility) WantsOCR() bool {
	switch f.SourceKind {
	case SourceNaverBlog, SourceNaverCafe, SourceInstagram:
		return true
	}
	return false
}

// NewPoolCode generates a natural key for a facility discovered without
// one: "s" + YYYYMMDD ingestion date stamp + the first 4 hex chars of a
// UUID, e.g. "s2024060100ab". Generation is a one-time event; the code is
// stable from then on.
func NewPoolCode() string {
	stamp := clock.Now().Format("20060102")
	suffix := uuid.NewString()[:4]
	return fmt.Sprintf("s%s%s", stamp, suffix)
}

// ClassifySourceURL maps a detail-page URL onto the SourceKind domain by
// host. Unknown hosts are plain web sources; an empty or unparseable URL
// means no discoverable page.
func ClassifySourceURL(rawURL string) SourceKind {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return SourceNone
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return SourceNone
	}

	host := strings.ToLower(u.Host)
	switch {
	case strings.Contains(host, "blog.naver.com"):
		return SourceNaverBlog
	case strings.Contains(host, "cafe.naver.com"):
		return SourceNaverCafe
	case strings.Contains(host, "instagram.com"):
		return SourceInstagram
	case strings.Contains(host, "pf.kakao.com"):
		return SourceKakaoChannel
	case strings.Contains(host, "cafe.daum.net"):
		return SourceDaumCafe
	}
	return SourceWeb
}
