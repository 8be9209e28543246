package service

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	analyticsdomain "github.com/smallbiznis/sheetseries/internal/analytics/domain"
	tsdomain "github.com/smallbiznis/sheetseries/internal/timeseries/domain"
)

const isoLayout = "2006-01-02T15:04:05-07:00"

type observation struct {
	parameter string
	at        time.Time
	value     float64
}

// parseSeries drops rows whose stored timestamp cannot be read back.
func parseSeries(rows []analyticsdomain.Row) []observation {
	out := make([]observation, 0, len(rows))
	for _, r := range rows {
		at, err := tsdomain.ParseUTC(r.TsUTC)
		if err != nil {
			at, err = time.Parse(time.RFC3339, r.TsUTC)
			if err != nil {
				continue
			}
		}
		out = append(out, observation{parameter: r.Parameter, at: at.UTC(), value: r.Value})
	}
	// ts_utc text order already matches, but fallback formats may not
	sort.SliceStable(out, func(i, j int) bool { return out[i].at.Before(out[j].at) })
	return out
}

func round2(v decimal.Decimal) float64 {
	return v.RoundBank(2).InexactFloat64()
}

func mean(values []float64) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(decimal.NewFromFloat(v))
	}
	return sum.Div(decimal.NewFromInt(int64(len(values))))
}

// lastBuckets keeps the n most recent distinct bucket keys present in obs.
func lastBuckets(obs []observation, n int, key func(time.Time) string) map[string]struct{} {
	seen := map[string]struct{}{}
	var keys []string
	for _, o := range obs {
		k := key(o.at)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > n {
		keys = keys[len(keys)-n:]
	}
	out := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		out[k] = struct{}{}
	}
	return out
}

func dayKey(t time.Time) string   { return t.Format("2006-01-02") }
func monthKey(t time.Time) string { return t.Format("2006-01") }

func filterBuckets(obs []observation, keep map[string]struct{}, key func(time.Time) string) []observation {
	out := obs[:0:0]
	for _, o := range obs {
		if _, ok := keep[key(o.at)]; ok {
			out = append(out, o)
		}
	}
	return out
}

func groupByParameter(obs []observation) (map[string][]observation, []string) {
	groups := map[string][]observation{}
	var names []string
	for _, o := range obs {
		if _, ok := groups[o.parameter]; !ok {
			names = append(names, o.parameter)
		}
		groups[o.parameter] = append(groups[o.parameter], o)
	}
	sort.Strings(names)
	return groups, names
}

func timeRange(obs []observation) *analyticsdomain.TimeRange {
	return &analyticsdomain.TimeRange{
		From: obs[0].at.Format(isoLayout),
		To:   obs[len(obs)-1].at.Format(isoLayout),
	}
}

// dailyStats expects obs in time order. The first occurrence wins ties.
func dailyStats(obs []observation) []analyticsdomain.DailyStat {
	var (
		out    []analyticsdomain.DailyStat
		values []float64
		cur    *analyticsdomain.DailyStat
	)
	flush := func() {
		if cur == nil {
			return
		}
		cur.Avg = round2(mean(values))
		out = append(out, *cur)
	}
	for _, o := range obs {
		day := dayKey(o.at)
		if cur == nil || cur.Date != day {
			flush()
			cur = &analyticsdomain.DailyStat{
				Date: day,
				Max:  analyticsdomain.Extreme{Time: o.at.Format(isoLayout), Value: o.value},
				Min:  analyticsdomain.Extreme{Time: o.at.Format(isoLayout), Value: o.value},
			}
			values = values[:0]
		}
		values = append(values, o.value)
		if o.value > cur.Max.Value {
			cur.Max = analyticsdomain.Extreme{Time: o.at.Format(isoLayout), Value: o.value}
		}
		if o.value < cur.Min.Value {
			cur.Min = analyticsdomain.Extreme{Time: o.at.Format(isoLayout), Value: o.value}
		}
	}
	flush()
	return out
}

func rollingDays(daily []analyticsdomain.DailyStat) *analyticsdomain.RollingDays {
	if len(daily) == 0 {
		return nil
	}
	avgs := make([]float64, 0, len(daily))
	maxDay, minDay := daily[0], daily[0]
	for _, d := range daily {
		avgs = append(avgs, d.Avg)
		if d.Max.Value > maxDay.Max.Value {
			maxDay = d
		}
		if d.Min.Value < minDay.Min.Value {
			minDay = d
		}
	}
	return &analyticsdomain.RollingDays{
		Avg:    round2(mean(avgs)),
		MaxDay: analyticsdomain.DayValue{Date: maxDay.Date, Value: maxDay.Max.Value},
		MinDay: analyticsdomain.DayValue{Date: minDay.Date, Value: minDay.Min.Value},
	}
}

func monthlyStats(obs []observation) []analyticsdomain.MonthlyStat {
	var (
		out    []analyticsdomain.MonthlyStat
		values []float64
		month  string
	)
	for i, o := range obs {
		m := monthKey(o.at)
		if i > 0 && m != month {
			out = append(out, analyticsdomain.MonthlyStat{Month: month, Avg: round2(mean(values))})
			values = values[:0]
		}
		month = m
		values = append(values, o.value)
	}
	if len(values) > 0 {
		out = append(out, analyticsdomain.MonthlyStat{Month: month, Avg: round2(mean(values))})
	}
	return out
}

func rollingMonths(months []analyticsdomain.MonthlyStat) *analyticsdomain.RollingMonths {
	if len(months) == 0 {
		return nil
	}
	avgs := make([]float64, 0, len(months))
	maxMonth, minMonth := months[0], months[0]
	for _, m := range months {
		avgs = append(avgs, m.Avg)
		if m.Avg > maxMonth.Avg {
			maxMonth = m
		}
		if m.Avg < minMonth.Avg {
			minMonth = m
		}
	}
	return &analyticsdomain.RollingMonths{
		OverallAvg: round2(mean(avgs)),
		MaxMonth:   maxMonth,
		MinMonth:   minMonth,
	}
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

func windowLabel(n int, basis string) string {
	if basis == analyticsdomain.BasisMonths {
		return fmt.Sprintf("%dm", n)
	}
	return fmt.Sprintf("%dd", n)
}
