// Package flows holds the multi-step auth orchestration logic, extracted so
// the root package stays a thin assembly layer. Each flow receives its
// dependencies as a Deps struct of narrow funcs and returns a Result the
// caller maps onto public state and errors.
//
// Flows never touch storage, transports, or loggers directly; everything
// arrives injected. That keeps them testable with plain function literals
// and free of import cycles with the root package.
package flows
