// Package main Checkout Server API
//
//	@title						Checkout Server API
//	@version					1.0
//	@description				Hosted payment sessions, payment operations and gateway webhooks.
//
//	@contact.name				Payments Team
//
//	@license.name				Proprietary
//
//	@host						localhost:8080
//	@BasePath					/api/v1
//
//	@tag.name					Sessions
//	@tag.description			Hosted payment sessions
//
//	@tag.name					Payments
//	@tag.description			Capture, refund and void
//
//	@tag.name					Webhooks
//	@tag.description			Gateway notifications and the webhook log
package main
