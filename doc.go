// Package auth implements the access model of the trading journal: who a
// signed-in identity is, what profile backs it, and what it may do.
//
// Roles and statuses:
//   - Role is a closed, ordered set (user < moderator < admin < super_admin).
//     Unknown values are rejected by ParseRole, never coerced to a default.
//   - AccountStatus covers pending, active, inactive and suspended. Only active
//     accounts pass the guard. StatusMachine owns the transition graph.
//
// Sessions and profiles:
//   - SessionProvider wraps an AuthBackend (sign up, sign in, sign out,
//     password reset) and publishes SessionState changes to subscribers.
//   - ProfileResolver loads the user_profiles row for a session and creates a
//     pending profile on first sign in. Role and status never come from the
//     identity metadata.
//
// Guarding and administration:
//   - AccessGuard turns a session plus a Requirement into a Decision with a
//     bounded permission check timeout.
//   - AdminService runs approve, reject, role and status changes and their
//     batch forms. Every operation checks the actor's permission before it
//     touches a target, and audit rows are appended best effort.
//
// Activity sinks:
//   - ActivitySink receives sign in, profile and lifecycle events. Sinks run
//     best effort (errors are logged) so they can forward to a queue without
//     blocking the operation that produced the event.
package auth
