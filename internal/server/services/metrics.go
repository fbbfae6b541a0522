package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sharesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "securedrop_shares_created_total",
		Help: "Shares successfully created",
	})

	sharesCreateFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "securedrop_shares_create_failed_total",
		Help: "Share creations that failed, by stage",
	}, []string{"stage"})

	sharesRetrievedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "securedrop_shares_retrieved_total",
		Help: "Read capabilities handed out",
	})

	sharesConsumedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "securedrop_shares_consumed_total",
		Help: "One-time shares consumed",
	})

	sharesDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "securedrop_shares_deleted_total",
		Help: "Explicit delete requests, by outcome",
	}, []string{"outcome"})

	orphansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "securedrop_orphan_blobs_total",
		Help: "Blobs left without a record after a failed create, by how they were handled",
	}, []string{"result"})
)
