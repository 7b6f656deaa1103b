package classify

import (
	"fmt"
	"time"
)

// Domain names of the built-in views
const (
	DomainAuth         = "auth"
	DomainUsers        = "users"
	DomainSystem       = "system"
	DomainConsultation = "consultation"
	DomainTransactions = "transactions"
)

// DefaultSuccess and DefaultFailure classify attempts when a taxonomy declares none
var (
	DefaultSuccess = []Predicate{
		{Keywords: []string{"success", "completed", "approved", "verified"}},
	}
	DefaultFailure = []Predicate{
		{Level: "error"},
		{Keywords: []string{"failed", "failure", "denied", "invalid"}},
	}
)

func kw(words ...string) Predicate {
	return Predicate{Keywords: words}
}

// Category order is match priority: "failed login" is a failure first.
var authTaxonomy = Taxonomy{
	Domain: DomainAuth,
	Title:  "Authentication logs",
	Categories: []Category{
		{ID: "failed", Label: "Failed attempts", Rules: []Predicate{
			kw("failed", "failure", "invalid", "denied", "locked out", "unauthorized"),
			{Level: "error", Keywords: []string{"login", "auth", "password", "token"}},
		}},
		{ID: "login", Label: "Login", Rules: []Predicate{kw("login", "logged in", "sign in", "signin")}},
		{ID: "registration", Label: "Registration", Rules: []Predicate{kw("register", "sign up", "signup", "account created")}},
		{ID: "password", Label: "Password", Rules: []Predicate{kw("password")}},
		{ID: "oauth", Label: "OAuth", Rules: []Predicate{kw("oauth", "google", "facebook", "github", "sso")}},
		{ID: "verification", Label: "Verification", Rules: []Predicate{kw("verif", "otp", "2fa", "two-factor", "confirm")}},
		{ID: "logout", Label: "Logout", Rules: []Predicate{kw("logout", "logged out", "sign out")}},
	},
	Counters: []Category{
		{ID: "logins", Label: "Logins", Rules: []Predicate{kw("login", "logged in", "sign in")}},
		{ID: "failedLogins", Label: "Failed logins", Rules: []Predicate{
			{All: []string{"login"}, Keywords: []string{"failed", "invalid", "denied"}},
		}},
		{ID: "registrations", Label: "Registrations", Rules: []Predicate{kw("register", "sign up", "signup")}},
		{ID: "passwordResets", Label: "Password resets", Rules: []Predicate{kw("password reset", "reset password", "forgot password")}},
		{ID: "oauthLogins", Label: "OAuth logins", Rules: []Predicate{kw("oauth", "google", "facebook", "sso")}},
	},
	Success: []Predicate{kw("success", "logged in", "verified")},
	Failure: []Predicate{
		kw("failed", "failure", "invalid", "denied", "locked out", "unauthorized"),
		{Level: "error"},
	},
	ExportFields: []string{"name", "provider"},
	Samples: []Sample{
		{Ago: 5 * time.Minute, Raw: `{"level":"info","message":"User logged in successfully","userId":"u-100","email":"amina@example.com","role":"patient","ip":"10.0.0.12"}`},
		{Ago: 20 * time.Minute, Raw: `{"level":"warn","message":"Failed login attempt: invalid password","email":"kofi@example.com","ip":"10.0.0.40"}`},
		{Ago: 2 * time.Hour, Raw: `{"level":"info","message":"New user registered","userId":"u-101","email":"lena@example.com","role":"doctor"}`},
		{Ago: 26 * time.Hour, Raw: `{"level":"info","message":"Password reset requested","userId":"u-102","email":"omar@example.com"}`},
	},
}

var usersTaxonomy = Taxonomy{
	Domain: DomainUsers,
	Title:  "User management logs",
	Categories: []Category{
		{ID: "registration", Label: "Registration", Rules: []Predicate{kw("register", "registration", "new user", "sign up", "signup", "account created")}},
		{ID: "deletion", Label: "Deletion", Rules: []Predicate{kw("delete", "deleted", "removed")}},
		{ID: "suspension", Label: "Suspension", Rules: []Predicate{kw("suspend", "banned", "blocked", "deactivat")}},
		{ID: "role", Label: "Role changes", Rules: []Predicate{kw("role", "permission", "promoted", "demoted")}},
		{ID: "profile", Label: "Profile updates", Rules: []Predicate{kw("profile", "updated", "update")}},
		{ID: "verification", Label: "Verification", Rules: []Predicate{kw("verif", "approved", "kyc")}},
	},
	Counters: []Category{
		{ID: "registrations", Label: "Registrations", Rules: []Predicate{kw("register", "new user", "sign up", "signup")}},
		{ID: "profileUpdates", Label: "Profile updates", Rules: []Predicate{kw("profile", "updated")}},
		{ID: "roleChanges", Label: "Role changes", Rules: []Predicate{kw("role", "permission")}},
		{ID: "deletions", Label: "Deletions", Rules: []Predicate{kw("delete", "removed")}},
		{ID: "suspensions", Label: "Suspensions", Rules: []Predicate{kw("suspend", "banned", "blocked")}},
	},
	ExportFields: []string{"name", "targetUserId", "action"},
	Samples: []Sample{
		{Ago: 10 * time.Minute, Raw: `{"level":"info","message":"User profile updated","userId":"u-200","user":{"email":"ines@example.com","name":"Ines","role":"patient"}}`},
		{Ago: 3 * time.Hour, Raw: `{"level":"warn","message":"User role changed from patient to doctor","userId":"admin-1","targetUserId":"u-201","email":"admin@example.com","role":"admin"}`},
		{Ago: 50 * time.Hour, Raw: `{"level":"error","message":"Failed to delete user account","userId":"admin-1","targetUserId":"u-202","email":"admin@example.com","role":"admin"}`},
	},
}

var systemTaxonomy = Taxonomy{
	Domain: DomainSystem,
	Title:  "System logs",
	Categories: []Category{
		{ID: "errors", Label: "Errors", Rules: []Predicate{{Level: "error"}, kw("exception", "crash", "panic")}},
		{ID: "security", Label: "Security", Rules: []Predicate{kw("security", "unauthorized", "forbidden", "attack", "suspicious", "rate limit")}},
		{ID: "performance", Label: "Performance", Rules: []Predicate{
			{Above: &Threshold{Field: "duration", Value: 1000}},
			kw("slow", "timeout", "latency", "memory", "cpu"),
		}},
		{ID: "api", Label: "API requests", Rules: []Predicate{{Fields: []string{"method", "url"}}, kw("api", "request", "endpoint")}},
		{ID: "database", Label: "Database", Rules: []Predicate{kw("database", "mongo", "sql", "redis", "query")}},
		{ID: "startup", Label: "Lifecycle", Rules: []Predicate{kw("starting", "started", "shutdown", "restart", "boot")}},
	},
	Counters: []Category{
		{ID: "apiRequests", Label: "API requests", Rules: []Predicate{{Fields: []string{"method", "url"}}}},
		{ID: "slowRequests", Label: "Slow requests", Rules: []Predicate{{Above: &Threshold{Field: "duration", Value: 1000}}}},
		{ID: "serverErrors", Label: "5xx responses", Rules: []Predicate{{Above: &Threshold{Field: "statusCode", Value: 499}}}},
		{ID: "securityEvents", Label: "Security events", Rules: []Predicate{kw("security", "unauthorized", "forbidden", "suspicious")}},
	},
	ExportFields: []string{"method", "url", "statusCode", "duration", "service"},
	Samples: []Sample{
		{Ago: 1 * time.Minute, Raw: `{"level":"info","message":"GET /api/consultations","method":"GET","url":"/api/consultations","statusCode":200,"duration":85,"service":"api"}`},
		{Ago: 15 * time.Minute, Raw: `{"level":"warn","message":"Slow request detected","method":"POST","url":"/api/payments","statusCode":200,"duration":2350,"service":"api"}`},
		{Ago: 4 * time.Hour, Raw: `{"level":"error","message":"Database connection timeout","service":"worker"}`},
		{Ago: 9 * 24 * time.Hour, Raw: `{"level":"info","message":"Server started on port 5000","service":"api"}`},
	},
}

var consultationTaxonomy = Taxonomy{
	Domain: DomainConsultation,
	Title:  "Consultation logs",
	Categories: []Category{
		{ID: "cancellation", Label: "Cancellations", Rules: []Predicate{kw("cancel")}},
		{ID: "completion", Label: "Completed", Rules: []Predicate{kw("completed", "ended", "finished")}},
		{ID: "payment", Label: "Payments", Rules: []Predicate{kw("payment", "paid", "charge")}},
		{ID: "rating", Label: "Ratings", Rules: []Predicate{kw("rating", "review", "feedback", "rated")}},
		{ID: "video", Label: "Video calls", Rules: []Predicate{kw("video", "call", "joined")}},
		{ID: "booking", Label: "Bookings", Rules: []Predicate{kw("book", "scheduled", "appointment")}},
	},
	Counters: []Category{
		{ID: "bookings", Label: "Bookings", Rules: []Predicate{kw("booked", "scheduled", "new appointment")}},
		{ID: "cancellations", Label: "Cancellations", Rules: []Predicate{kw("cancel")}},
		{ID: "completions", Label: "Completions", Rules: []Predicate{kw("completed", "ended")}},
		{ID: "payments", Label: "Payments", Rules: []Predicate{kw("payment", "paid")}},
	},
	ExportFields: []string{"consultationId", "doctorId", "patientId", "status", "amount"},
	Samples: []Sample{
		{Ago: 30 * time.Minute, Raw: `{"level":"info","message":"Consultation booked","consultationId":"c-1","doctorId":"d-1","patientId":"u-100","userId":"u-100","email":"amina@example.com"}`},
		{Ago: 90 * time.Minute, Raw: `{"level":"info","message":"Consultation completed","consultationId":"c-2","doctorId":"d-2","patientId":"u-103","status":"completed"}`},
		{Ago: 30 * time.Hour, Raw: `{"level":"warn","message":"Consultation cancelled by patient","consultationId":"c-3","patientId":"u-104","userId":"u-104"}`},
	},
}

var transactionsTaxonomy = Taxonomy{
	Domain: DomainTransactions,
	Title:  "Transaction logs",
	Categories: []Category{
		{ID: "failed", Label: "Failed", Rules: []Predicate{
			{Equals: &FieldValue{Field: "status", Value: "failed"}},
			kw("failed", "declined", "rejected"),
		}},
		{ID: "pending", Label: "Pending", Rules: []Predicate{
			{Equals: &FieldValue{Field: "status", Value: "pending"}},
			kw("pending", "processing"),
		}},
		{ID: "refund", Label: "Refunds", Rules: []Predicate{kw("refund"), {Equals: &FieldValue{Field: "type", Value: "refund"}}}},
		{ID: "withdrawal", Label: "Withdrawals", Rules: []Predicate{kw("withdraw", "payout"), {Equals: &FieldValue{Field: "type", Value: "withdrawal"}}}},
		{ID: "deposit", Label: "Deposits", Rules: []Predicate{kw("deposit", "top up", "topup"), {Equals: &FieldValue{Field: "type", Value: "deposit"}}}},
		{ID: "payment", Label: "Payments", Rules: []Predicate{kw("payment", "paid", "charge", "purchase"), {Equals: &FieldValue{Field: "type", Value: "payment"}}}},
	},
	Counters: []Category{
		{ID: "payments", Label: "Payments", Rules: []Predicate{kw("payment", "paid"), {Equals: &FieldValue{Field: "type", Value: "payment"}}}},
		{ID: "refunds", Label: "Refunds", Rules: []Predicate{kw("refund"), {Equals: &FieldValue{Field: "type", Value: "refund"}}}},
		{ID: "withdrawals", Label: "Withdrawals", Rules: []Predicate{kw("withdraw", "payout"), {Equals: &FieldValue{Field: "type", Value: "withdrawal"}}}},
		{ID: "failedTransactions", Label: "Failed", Rules: []Predicate{{Equals: &FieldValue{Field: "status", Value: "failed"}}}},
		{ID: "pendingTransactions", Label: "Pending", Rules: []Predicate{{Equals: &FieldValue{Field: "status", Value: "pending"}}}},
	},
	Success: []Predicate{
		{Equals: &FieldValue{Field: "status", Value: "completed"}},
		{Equals: &FieldValue{Field: "status", Value: "success"}},
	},
	Failure: []Predicate{
		{Equals: &FieldValue{Field: "status", Value: "failed"}},
		kw("declined", "rejected"),
	},
	ExportFields: []string{"transactionId", "type", "amount", "currency", "status", "reference"},
	Samples: []Sample{
		{Ago: 12 * time.Minute, Raw: `{"transactionId":"t-1","type":"payment","status":"completed","amount":15000,"currency":"NGN","message":"Consultation payment received","userId":"u-100","email":"amina@example.com"}`},
		{Ago: 5 * time.Hour, Raw: `{"transactionId":"t-2","type":"refund","status":"pending","amount":5000,"currency":"NGN","message":"Refund requested","userId":"u-104"}`},
		{Ago: 3 * 24 * time.Hour, Raw: `{"transactionId":"t-3","type":"withdrawal","status":"failed","amount":42000,"currency":"NGN","level":"error","message":"Withdrawal declined by bank","userId":"d-1"}`},
	},
}

var builtins = map[string]Taxonomy{
	DomainAuth:         authTaxonomy,
	DomainUsers:        usersTaxonomy,
	DomainSystem:       systemTaxonomy,
	DomainConsultation: consultationTaxonomy,
	DomainTransactions: transactionsTaxonomy,
}

// Builtin returns the built-in taxonomy of a domain
func Builtin(domain string) (Taxonomy, error) {
	t, ok := builtins[domain]
	if !ok {
		return Taxonomy{}, fmt.Errorf("unknown domain: %s", domain)
	}
	return t, nil
}

// Domains lists the built-in domains in display order
func Domains() []string {
	return []string{DomainAuth, DomainUsers, DomainSystem, DomainConsultation, DomainTransactions}
}
