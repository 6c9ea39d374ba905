/*
Package llm relays chat turns between website visitors and a completion
provider, running server-side tools along the way.

# Architecture Overview

The package follows a layered layout:

1. HTTP Handlers (handlers.go)
  - POST /agent streams a turn, GET /jwt-token issues access tokens
  - Verify the bearer token, rate limit and CAPTCHA before any streaming
  - Report failures that happen before the stream starts as JSON

2. Authorization (authorization.go)
  - Per-client request limits
  - CAPTCHA gate on the opening request of a conversation
  - Response headers that tell clients when to retry or refresh a token

3. Service (service.go)
  - Selects the provider from configuration
  - Accumulates token usage per model

4. Relay (relay.go)
  - Streams one provider round at a time onto a Sink
  - Buffers tool input, runs server tools, appends results to the history
  - Stops at the round cap or when the model asks for a client tool

5. Providers (anthropic.go, openai.go)
  - Translate SDK streams into a single ProviderEvent shape

# Request Flow

 1. A request arrives at /agent with a bearer token and a message history
 2. The handler verifies the token and validates the history
 3. The relay opens a provider stream and forwards block events
 4. Requested server tools run and their results are streamed as tool_result
 5. The relay loops with the extended history until the model ends its turn
 6. message_stop and done close the stream

# Errors

Provider failures are classified into a small set of kinds. Clients see the
kind and a fixed message, never the provider's own error text.
*/
package llm
