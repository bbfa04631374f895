package history

import "time"

type Bucket string

const (
	BucketToday     Bucket = "today"
	BucketYesterday Bucket = "yesterday"
	BucketThisWeek  Bucket = "thisWeek"
	BucketOlder     Bucket = "older"
)

// Groups holds entries split by recency, each slice keeping the
// newest-first order of the input.
type Groups struct {
	Today     []Entry
	Yesterday []Entry
	ThisWeek  []Entry
	Older     []Entry
}

// GroupByDate buckets entries relative to now in local time. "This
// week" means within the last seven days but before yesterday.
func GroupByDate(entries []Entry, now time.Time) Groups {
	var groups Groups
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	yesterdayStart := dayStart.AddDate(0, 0, -1)
	weekStart := dayStart.AddDate(0, 0, -7)

	for _, entry := range entries {
		at := entry.ExecutedAt.In(now.Location())
		switch {
		case !at.Before(dayStart):
			groups.Today = append(groups.Today, entry)
		case !at.Before(yesterdayStart):
			groups.Yesterday = append(groups.Yesterday, entry)
		case !at.Before(weekStart):
			groups.ThisWeek = append(groups.ThisWeek, entry)
		default:
			groups.Older = append(groups.Older, entry)
		}
	}
	return groups
}

// BucketOf names the group a single entry falls into.
func BucketOf(entry Entry, now time.Time) Bucket {
	groups := GroupByDate([]Entry{entry}, now)
	switch {
	case len(groups.Today) > 0:
		return BucketToday
	case len(groups.Yesterday) > 0:
		return BucketYesterday
	case len(groups.ThisWeek) > 0:
		return BucketThisWeek
	default:
		return BucketOlder
	}
}
