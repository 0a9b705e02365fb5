package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MaxAttachmentSlots is how many ntceSpecDocUrlN / ntceSpecFileNmN pairs a notice can carry.
const MaxAttachmentSlots = 10

// PendingURL marks an attachment the institution has not uploaded yet ("to be provided later").
const PendingURL = "추후제공예정"

// BidNotice is one item of the G2B bid notice list. The API does not publish a stable schema,
// so it is kept as a plain map and read through accessors.
type BidNotice map[string]any

// String returns the field as a string. Numbers are rendered without exponent.
func (b BidNotice) String(key string) string {
	v, ok := b[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}

// Number returns the bid notice number (bidNtceNo).
func (b BidNotice) Number() string { return b.String("bidNtceNo") }

// AttachmentRef points at one attachment slot of a notice.
type AttachmentRef struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Seq      int    `json:"seq"`
}

// Attachments returns the filled attachment slots in slot order. Slots without a URL or
// filename, and slots whose URL is still the pending marker, are left out.
func (b BidNotice) Attachments() []AttachmentRef {
	var refs []AttachmentRef
	for i := 1; i <= MaxAttachmentSlots; i++ {
		url := b.String(fmt.Sprintf("ntceSpecDocUrl%d", i))
		name := b.String(fmt.Sprintf("ntceSpecFileNm%d", i))
		if url == "" || name == "" || url == PendingURL {
			continue
		}
		refs = append(refs, AttachmentRef{Filename: name, URL: url, Seq: i})
	}
	return refs
}

// DownloadedAttachment is the outcome of fetching one attachment. LocalPath is nil when the
// download failed.
type DownloadedAttachment struct {
	Filename   string  `json:"filename" bson:"filename"`
	URL        string  `json:"url" bson:"url"`
	Seq        int     `json:"seq" bson:"seq"`
	LocalPath  *string `json:"local_path" bson:"local_path"`
	Size       int64   `json:"size,omitempty" bson:"size,omitempty"`
	ObjectURL  string  `json:"object_url,omitempty" bson:"object_url,omitempty"`
	Downloaded bool    `json:"downloaded" bson:"downloaded"`
}

// BidItem is a notice normalized for display.
type BidItem struct {
	BidNtceNo              string                 `json:"bidNtceNo" bson:"bidNtceNo"`
	BidNtceNm              string                 `json:"bidNtceNm" bson:"bidNtceNm"`
	NtceInsttNm            string                 `json:"ntceInsttNm" bson:"ntceInsttNm"`
	BidNtceDt              string                 `json:"bidNtceDt" bson:"bidNtceDt"`
	OpengDt                string                 `json:"opengDt" bson:"opengDt"`
	BidClseDt              string                 `json:"bidClseDt" bson:"bidClseDt"`
	AsignBdgtAmt           string                 `json:"asignBdgtAmt" bson:"asignBdgtAmt"`
	PresmptPrce            string                 `json:"presmptPrce" bson:"presmptPrce"`
	CntrctCnclsMthdNm      string                 `json:"cntrctCnclsMthdNm" bson:"cntrctCnclsMthdNm"`
	NtceKindNm             string                 `json:"ntceKindNm" bson:"ntceKindNm"`
	BidNtceDtlURL          string                 `json:"bidNtceDtlUrl" bson:"bidNtceDtlUrl"`
	NtceInsttOfclNm        string                 `json:"ntceInsttOfclNm" bson:"ntceInsttOfclNm"`
	NtceInsttOfclTelNo     string                 `json:"ntceInsttOfclTelNo" bson:"ntceInsttOfclTelNo"`
	NtceInsttOfclEmailAdrs string                 `json:"ntceInsttOfclEmailAdrs" bson:"ntceInsttOfclEmailAdrs"`
	Attachments            []DownloadedAttachment `json:"attachments" bson:"attachments"`
	OriginalData           BidNotice              `json:"original_data" bson:"original_data"`
}

// NewBidItem normalizes a notice together with its attachment outcomes.
func NewBidItem(n BidNotice, attachments []DownloadedAttachment) BidItem {
	if attachments == nil {
		attachments = []DownloadedAttachment{}
	}
	return BidItem{
		BidNtceNo:              n.Number(),
		BidNtceNm:              n.String("bidNtceNm"),
		NtceInsttNm:            n.String("ntceInsttNm"),
		BidNtceDt:              FormatDate(n.String("bidNtceDt")),
		OpengDt:                FormatDate(n.String("opengDt")),
		BidClseDt:              FormatDate(n.String("bidClseDt")),
		AsignBdgtAmt:           FormatCurrency(n.String("asignBdgtAmt")),
		PresmptPrce:            FormatCurrency(n.String("presmptPrce")),
		CntrctCnclsMthdNm:      n.String("cntrctCnclsMthdNm"),
		NtceKindNm:             n.String("ntceKindNm"),
		BidNtceDtlURL:          n.String("bidNtceDtlUrl"),
		NtceInsttOfclNm:        n.String("ntceInsttOfclNm"),
		NtceInsttOfclTelNo:     n.String("ntceInsttOfclTelNo"),
		NtceInsttOfclEmailAdrs: n.String("ntceInsttOfclEmailAdrs"),
		Attachments:            attachments,
		OriginalData:           n,
	}
}
