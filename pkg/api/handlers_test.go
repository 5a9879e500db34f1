package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/openclaim/excore/pkg/models"
)

func TestRemainingPagesFloorsAtZero(t *testing.T) {
	assert.Equal(t, 3, remainingPages(models.Search{PageBudget: 10, PagesFetched: 7}))
	assert.Equal(t, 0, remainingPages(models.Search{PageBudget: 10, PagesFetched: 15}))
}

func TestRemainingPercentHandlesZeroBudget(t *testing.T) {
	assert.Equal(t, 0.0, remainingPercent(models.Search{PageBudget: 0, PagesFetched: 0}))
	assert.InDelta(t, 0.5, remainingPercent(models.Search{PageBudget: 10, PagesFetched: 5}), 0.0001)
}

func TestParseWaitSecondsAcceptsPlainNumbers(t *testing.T) {
	assert.Equal(t, 5*time.Second, parseWaitSeconds("5"))
	assert.Equal(t, time.Duration(0), parseWaitSeconds(""))
	assert.Equal(t, time.Duration(0), parseWaitSeconds("not-a-number"))
}

func TestDomainOfURLStripsSchemeAndPath(t *testing.T) {
	assert.Equal(t, "arxiv.org", domainOfURL("https://arxiv.org/abs/1234.5678"))
	assert.Equal(t, "example.com", domainOfURL("http://example.com?q=1"))
}
