package service

import "github.com/prometheus/client_golang/prometheus"

// Verification results recorded by auth_otp_verified_total.
const (
	resultSuccess   = "success"
	resultInvalid   = "invalid"
	resultNotFound  = "not_found"
	resultThrottled = "throttled"
)

var (
	otpIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_otp_issued_total",
			Help: "Total number of login codes issued and emailed",
		},
	)

	otpVerifiedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_otp_verified_total",
			Help: "Total number of login code verifications by result",
		},
		[]string{"result"},
	)

	otpDispatchFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_otp_dispatch_failures_total",
			Help: "Total number of login code emails the transport failed to send",
		},
	)

	federatedLoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_federated_logins_total",
			Help: "Total number of federated sign-ins by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(otpIssuedTotal, otpVerifiedTotal, otpDispatchFailuresTotal, federatedLoginsTotal)
}
