/*
Package middleware holds request-scoped identifiers shared by the HTTP layer
and the persistence layer.

RequestIDMiddleware reuses a caller-supplied X-Request-ID (up to 128
characters) or generates a UUID, stores it in the request context and echoes it
in the response header. GetRequestID reads it back anywhere downstream, for
example when conversation messages are stamped with the request that produced
them.

The full chain assembled by server.New is:
 1. RequestIDMiddleware
 2. LoggingMiddleware
 3. CORSMiddleware
 4. TimeoutMiddleware
 5. Recoverer
 6. QuotaHeadersMiddleware
 7. OTel instrumentation
*/
package middleware
