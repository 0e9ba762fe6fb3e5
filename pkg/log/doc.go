/*
Package log provides structured logging for the agent using zerolog.

A single global Logger is initialized once in main via Init, and every
long-running component (registry, loader, classifier, aggregator, emitter)
derives a component-tagged child logger from it with WithComponent.
*/
package log
