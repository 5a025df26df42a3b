// Package activity turns filesystem writes into session signals.
//
// A [Source] watches a directory tree with fsnotify. The first write or
// create after a quiet period calls StartSession on its [Sink]; once no
// further events arrive for the idle timeout it calls EndSession. Bursts of
// editor saves therefore map onto one session, and gaps shorter than the
// session grace period resume it.
package activity
