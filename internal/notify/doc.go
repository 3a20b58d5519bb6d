// Package notify delivers alert messages to chat webhooks.
//
// Slack incoming webhooks are the supported target. Each message is a single
// attachment coloured by level, carrying a header block with the title and
// a mrkdwn section with the body. Delivery is retried on 5xx and 429 with
// jittered exponential backoff; other failures return immediately.
package notify
