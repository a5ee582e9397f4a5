package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered sqlite schema. It mirrors the backend tables
// the client reads and writes. Versions must be sequential from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS profiles (
	id          TEXT PRIMARY KEY,
	email       TEXT NOT NULL DEFAULT '',
	full_name   TEXT NOT NULL DEFAULT '',
	role        TEXT NOT NULL DEFAULT 'student',
	avatar_url  TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS courses (
	id          TEXT PRIMARY KEY,
	teacher_id  TEXT NOT NULL,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL DEFAULT '',
	level       TEXT NOT NULL DEFAULT '',
	published   INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS enrollments (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	course_id   TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
	status      TEXT NOT NULL DEFAULT 'active',
	progress    INTEGER NOT NULL DEFAULT 0,
	enrolled_at DATETIME NOT NULL,
	UNIQUE (user_id, course_id)
);

CREATE TABLE IF NOT EXISTS live_classes (
	id               TEXT PRIMARY KEY,
	teacher_id       TEXT NOT NULL,
	course_id        TEXT NOT NULL,
	title            TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	scheduled_at     DATETIME,
	duration_minutes INTEGER NOT NULL DEFAULT 60,
	status           TEXT NOT NULL DEFAULT 'scheduled',
	is_public        INTEGER NOT NULL DEFAULT 1,
	meeting_url      TEXT
);

CREATE TABLE IF NOT EXISTS tests (
	id               TEXT PRIMARY KEY,
	course_id        TEXT NOT NULL,
	teacher_id       TEXT NOT NULL,
	title            TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	due_date         DATETIME,
	duration_minutes INTEGER NOT NULL DEFAULT 60,
	total_marks      INTEGER NOT NULL DEFAULT 100
);

CREATE TABLE IF NOT EXISTS assignments (
	id          TEXT PRIMARY KEY,
	course_id   TEXT NOT NULL,
	teacher_id  TEXT NOT NULL,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	due_date    DATETIME,
	max_score   INTEGER NOT NULL DEFAULT 100
);

CREATE TABLE IF NOT EXISTS announcements (
	id          TEXT PRIMARY KEY,
	course_id   TEXT NOT NULL,
	teacher_id  TEXT NOT NULL,
	title       TEXT NOT NULL,
	content     TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	type        TEXT NOT NULL,
	title       TEXT NOT NULL,
	message     TEXT NOT NULL DEFAULT '',
	link        TEXT,
	read        INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id           TEXT PRIMARY KEY,
	sender_id    TEXT NOT NULL,
	recipient_id TEXT NOT NULL,
	subject      TEXT,
	message      TEXT NOT NULL,
	read         INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_notifications_user_created
	ON notifications(user_id, created_at);

CREATE INDEX IF NOT EXISTS idx_notifications_user_read
	ON notifications(user_id, read);

CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender_id);
CREATE INDEX IF NOT EXISTS idx_messages_recipient ON messages(recipient_id);
CREATE INDEX IF NOT EXISTS idx_enrollments_course_status
	ON enrollments(course_id, status);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
	{
		version: 3,
		sql: `
CREATE TABLE IF NOT EXISTS avatars (
	path         TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	content_type TEXT NOT NULL,
	data         BLOB NOT NULL,
	updated_at   DATETIME NOT NULL
);

INSERT INTO schema_version (version) VALUES (3);
`,
	},
}
