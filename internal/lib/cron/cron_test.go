package cron_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/internal/lib/cron"
)

func TestParseCronSchedule(t *testing.T) {
	t.Run("accepts five field expressions", func(t *testing.T) {
		schedule, err := cron.ParseCronSchedule("0 * * * *")
		assert.Nil(t, err)
		assert.NotNil(t, schedule)

		from := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
		assert.Equal(t, time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC), schedule.Next(from))
	})
	t.Run("accepts descriptors", func(t *testing.T) {
		_, err := cron.ParseCronSchedule("@daily")
		assert.Nil(t, err)
	})
	t.Run("rejects malformed expressions", func(t *testing.T) {
		_, err := cron.ParseCronSchedule("61 * * * *")
		assert.NotNil(t, err)

		_, err = cron.ParseCronSchedule("not a cron")
		assert.NotNil(t, err)
	})
}

func TestSplitTimezone(t *testing.T) {
	t.Run("splits a prefixed expression", func(t *testing.T) {
		zone, expr := cron.SplitTimezone("TZ=Asia/Kolkata 30 9 * * *")
		assert.Equal(t, "Asia/Kolkata", zone)
		assert.Equal(t, "30 9 * * *", expr)
	})
	t.Run("passes unprefixed expressions through", func(t *testing.T) {
		zone, expr := cron.SplitTimezone("* * * * *")
		assert.Equal(t, "", zone)
		assert.Equal(t, "* * * * *", expr)
	})
}

func TestDescribe(t *testing.T) {
	cases := []struct {
		expr     string
		expected string
	}{
		{"* * * * *", "every minute"},
		{"*/15 * * * *", "every 15 minutes"},
		{"30 * * * *", "at minute 30 of every hour"},
		{"0 9 * * *", "at 09:00 every day"},
		{"0 9 * * 1", "at 09:00 on Monday"},
		{"30 18 1 * *", "at 18:30 on day 1 of the month"},
		{"TZ=Asia/Kolkata 0 9 * * *", "at 09:00 every day (Asia/Kolkata)"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.expected, cron.Describe(tc.expr), tc.expr)
	}

	t.Run("returns unclassifiable expressions unchanged", func(t *testing.T) {
		assert.Equal(t, "1,31 2-5 * * *", cron.Describe("1,31 2-5 * * *"))
	})
	t.Run("returns invalid expressions unchanged", func(t *testing.T) {
		assert.Equal(t, "not a cron", cron.Describe("not a cron"))
	})
}
