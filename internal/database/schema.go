package database

const schema = `
CREATE TABLE IF NOT EXISTS repositories (
	repo_id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	vcs TEXT NOT NULL,
	root TEXT NOT NULL DEFAULT '',
	authorization_method TEXT NOT NULL DEFAULT '',
	urls TEXT NOT NULL DEFAULT '{}',
	data TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS operations (
	vc_op_id INTEGER PRIMARY KEY AUTOINCREMENT,
	repo_id INTEGER NOT NULL REFERENCES repositories(repo_id),
	type INTEGER NOT NULL,
	committer TEXT NOT NULL DEFAULT '',
	author TEXT NOT NULL DEFAULT '',
	date INTEGER NOT NULL DEFAULT 0,
	revision TEXT NOT NULL DEFAULT '',
	message TEXT NOT NULL DEFAULT '',
	uid INTEGER NOT NULL DEFAULT 0,
	extra TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_operations_repo_date ON operations(repo_id, date);
CREATE INDEX IF NOT EXISTS idx_operations_committer ON operations(repo_id, committer);
CREATE UNIQUE INDEX IF NOT EXISTS idx_operations_revision ON operations(repo_id, type, revision) WHERE revision <> '';

CREATE TABLE IF NOT EXISTS labels (
	label_id INTEGER PRIMARY KEY AUTOINCREMENT,
	repo_id INTEGER NOT NULL REFERENCES repositories(repo_id),
	name TEXT NOT NULL,
	type INTEGER NOT NULL,
	UNIQUE(repo_id, name, type)
);

CREATE TABLE IF NOT EXISTS operation_labels (
	vc_op_id INTEGER NOT NULL REFERENCES operations(vc_op_id),
	label_id INTEGER NOT NULL REFERENCES labels(label_id),
	action INTEGER NOT NULL,
	PRIMARY KEY (vc_op_id, label_id)
);

CREATE TABLE IF NOT EXISTS item_revisions (
	item_revision_id INTEGER PRIMARY KEY AUTOINCREMENT,
	repo_id INTEGER NOT NULL REFERENCES repositories(repo_id),
	path TEXT NOT NULL,
	revision TEXT NOT NULL DEFAULT '',
	type INTEGER NOT NULL,
	UNIQUE(repo_id, path, revision)
);

CREATE TABLE IF NOT EXISTS operation_items (
	vc_op_id INTEGER NOT NULL REFERENCES operations(vc_op_id),
	item_revision_id INTEGER NOT NULL REFERENCES item_revisions(item_revision_id),
	type INTEGER NOT NULL,
	PRIMARY KEY (vc_op_id, item_revision_id)
);
CREATE INDEX IF NOT EXISTS idx_operation_items_item ON operation_items(item_revision_id);

CREATE TABLE IF NOT EXISTS source_items (
	item_revision_id INTEGER NOT NULL,
	source_item_revision_id INTEGER NOT NULL,
	action INTEGER NOT NULL,
	line_changes_recorded INTEGER NOT NULL DEFAULT 0,
	line_changes_added INTEGER NOT NULL DEFAULT 0,
	line_changes_removed INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (item_revision_id, source_item_revision_id)
);
CREATE INDEX IF NOT EXISTS idx_source_items_source ON source_items(source_item_revision_id);

CREATE TABLE IF NOT EXISTS accounts (
	repo_id INTEGER NOT NULL REFERENCES repositories(repo_id),
	uid INTEGER NOT NULL,
	username TEXT NOT NULL,
	PRIMARY KEY (repo_id, uid)
);
CREATE INDEX IF NOT EXISTS idx_accounts_username ON accounts(repo_id, username);
`

const pgSchema = `
CREATE TABLE IF NOT EXISTS repositories (
	repo_id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	vcs TEXT NOT NULL,
	root TEXT NOT NULL DEFAULT '',
	authorization_method TEXT NOT NULL DEFAULT '',
	urls TEXT NOT NULL DEFAULT '{}',
	data TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS operations (
	vc_op_id BIGSERIAL PRIMARY KEY,
	repo_id BIGINT NOT NULL REFERENCES repositories(repo_id),
	type INTEGER NOT NULL,
	committer TEXT NOT NULL DEFAULT '',
	author TEXT NOT NULL DEFAULT '',
	date BIGINT NOT NULL DEFAULT 0,
	revision TEXT NOT NULL DEFAULT '',
	message TEXT NOT NULL DEFAULT '',
	uid BIGINT NOT NULL DEFAULT 0,
	extra TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_operations_repo_date ON operations(repo_id, date);
CREATE INDEX IF NOT EXISTS idx_operations_committer ON operations(repo_id, committer);
CREATE UNIQUE INDEX IF NOT EXISTS idx_operations_revision ON operations(repo_id, type, revision) WHERE revision <> '';

CREATE TABLE IF NOT EXISTS labels (
	label_id BIGSERIAL PRIMARY KEY,
	repo_id BIGINT NOT NULL REFERENCES repositories(repo_id),
	name TEXT NOT NULL,
	type INTEGER NOT NULL,
	UNIQUE(repo_id, name, type)
);

CREATE TABLE IF NOT EXISTS operation_labels (
	vc_op_id BIGINT NOT NULL REFERENCES operations(vc_op_id),
	label_id BIGINT NOT NULL REFERENCES labels(label_id),
	action INTEGER NOT NULL,
	PRIMARY KEY (vc_op_id, label_id)
);

CREATE TABLE IF NOT EXISTS item_revisions (
	item_revision_id BIGSERIAL PRIMARY KEY,
	repo_id BIGINT NOT NULL REFERENCES repositories(repo_id),
	path TEXT NOT NULL,
	revision TEXT NOT NULL DEFAULT '',
	type INTEGER NOT NULL,
	UNIQUE(repo_id, path, revision)
);

CREATE TABLE IF NOT EXISTS operation_items (
	vc_op_id BIGINT NOT NULL REFERENCES operations(vc_op_id),
	item_revision_id BIGINT NOT NULL REFERENCES item_revisions(item_revision_id),
	type INTEGER NOT NULL,
	PRIMARY KEY (vc_op_id, item_revision_id)
);
CREATE INDEX IF NOT EXISTS idx_operation_items_item ON operation_items(item_revision_id);

CREATE TABLE IF NOT EXISTS source_items (
	item_revision_id BIGINT NOT NULL,
	source_item_revision_id BIGINT NOT NULL,
	action INTEGER NOT NULL,
	line_changes_recorded BOOLEAN NOT NULL DEFAULT FALSE,
	line_changes_added INTEGER NOT NULL DEFAULT 0,
	line_changes_removed INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (item_revision_id, source_item_revision_id)
);
CREATE INDEX IF NOT EXISTS idx_source_items_source ON source_items(source_item_revision_id);

CREATE TABLE IF NOT EXISTS accounts (
	repo_id BIGINT NOT NULL REFERENCES repositories(repo_id),
	uid BIGINT NOT NULL,
	username TEXT NOT NULL,
	PRIMARY KEY (repo_id, uid)
);
CREATE INDEX IF NOT EXISTS idx_accounts_username ON accounts(repo_id, username);
`
