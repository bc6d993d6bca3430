package postgres

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_profiles",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_chat_messages",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
		{
			Version: 3,
			Name:    "create_wellness",
			UpSQL:   migration003Up,
			DownSQL: migration003Down,
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: PROFILES AND COMPANIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS profiles (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL DEFAULT '',
    role TEXT NOT NULL,
    focus SMALLINT NOT NULL DEFAULT 0,
    focus_confirmed_at TIMESTAMP WITH TIME ZONE,
    selected_companion TEXT NOT NULL DEFAULT '',
    assigned_mentor_id TEXT NOT NULL DEFAULT '',
    coins INTEGER NOT NULL DEFAULT 0,
    xp INTEGER NOT NULL DEFAULT 0,

    -- Mentor details; has_mentor_details is false until setup.
    has_mentor_details BOOLEAN NOT NULL DEFAULT FALSE,
    mentor_name TEXT NOT NULL DEFAULT '',
    mentor_bio TEXT NOT NULL DEFAULT '',
    mentor_support_areas SMALLINT NOT NULL DEFAULT 0,
    mentor_availability TEXT NOT NULL DEFAULT '',

    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_role CHECK (role IN ('STUDENT', 'MENTOR')),
    CONSTRAINT valid_wallet CHECK (coins >= 0 AND xp >= 0)
);

-- Mentor dashboard lookup.
CREATE INDEX IF NOT EXISTS idx_profiles_role_mentor ON profiles(role, assigned_mentor_id, created_at);

CREATE TABLE IF NOT EXISTS companions (
    user_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
    species TEXT NOT NULL,
    level INTEGER NOT NULL DEFAULT 1,
    progress INTEGER NOT NULL DEFAULT 0,
    food INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, species),
    CONSTRAINT valid_stats CHECK (level >= 1 AND progress >= 0 AND food >= 0)
);
`

const migration001Down = `
DROP TABLE IF EXISTS companions;
DROP TABLE IF EXISTS profiles;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CHAT MESSAGES
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS chat_messages (
    seq BIGSERIAL PRIMARY KEY,
    id TEXT NOT NULL UNIQUE,
    conversation_id TEXT NOT NULL,
    sender_id TEXT NOT NULL,
    text TEXT NOT NULL,
    sent_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_conversation ON chat_messages(conversation_id, seq);
`

const migration002Down = `
DROP TABLE IF EXISTS chat_messages;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CHECK-INS, LESSON ATTEMPTS, REWARD GRANTS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS checkins (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
    kind TEXT NOT NULL,
    date TIMESTAMP WITH TIME ZONE NOT NULL,
    questions TEXT[] NOT NULL,
    answers TEXT[] NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_checkins_user_date ON checkins(user_id, date DESC);

CREATE TABLE IF NOT EXISTS lesson_attempts (
    id TEXT NOT NULL,
    user_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
    lesson_id TEXT NOT NULL,
    started_at TIMESTAMP WITH TIME ZONE NOT NULL,
    completed_at TIMESTAMP WITH TIME ZONE,
    score INTEGER NOT NULL DEFAULT 0,

    PRIMARY KEY (user_id, id)
);

CREATE TABLE IF NOT EXISTS reward_grants (
    user_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
    key TEXT NOT NULL,
    xp INTEGER NOT NULL,
    progress INTEGER NOT NULL,
    coins INTEGER NOT NULL,
    granted_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, key)
);
`

const migration003Down = `
DROP TABLE IF EXISTS reward_grants;
DROP TABLE IF EXISTS lesson_attempts;
DROP TABLE IF EXISTS checkins;
`
