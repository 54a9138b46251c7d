package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE flows (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				canvas_type VARCHAR(50) NOT NULL CHECK (canvas_type IN ('ux_canvas', 'system_workflow')),
				parent_canvas_id UUID,
				parent_id VARCHAR(255),
				current_version_id UUID,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_flows_canvas_type ON flows(canvas_type);
			CREATE INDEX idx_flows_parent_canvas_id ON flows(parent_canvas_id);

			CREATE TABLE flow_versions (
				id UUID PRIMARY KEY,
				flow_id UUID NOT NULL REFERENCES flows(id),
				visual_graph JSONB NOT NULL,
				execution_graph JSONB NOT NULL,
				stitch_map JSONB,
				message TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_flow_versions_flow_id ON flow_versions(flow_id);

			CREATE TABLE runs (
				id UUID PRIMARY KEY,
				flow_id UUID NOT NULL,
				flow_version_id UUID NOT NULL REFERENCES flow_versions(id),
				entity_id UUID,
				trigger_info JSONB NOT NULL,
				ux_context JSONB,
				input JSONB,
				node_states JSONB NOT NULL,
				row_version BIGINT NOT NULL DEFAULT 1,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_runs_flow_id ON runs(flow_id);
			CREATE INDEX idx_runs_flow_version_id ON runs(flow_version_id);
			CREATE INDEX idx_runs_entity_id ON runs(entity_id);

			CREATE TABLE entities (
				id UUID PRIMARY KEY,
				canvas_id UUID NOT NULL,
				entity_type VARCHAR(255) NOT NULL,
				current_node_id VARCHAR(255),
				current_edge_id VARCHAR(255),
				edge_progress DOUBLE PRECISION NOT NULL DEFAULT 0,
				destination_node_id VARCHAR(255),
				metadata JSONB,
				completed_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_entities_canvas_id ON entities(canvas_id);

			CREATE TABLE journey_events (
				id UUID PRIMARY KEY,
				entity_id UUID NOT NULL,
				event_type VARCHAR(50) NOT NULL,
				node_id VARCHAR(255),
				edge_id VARCHAR(255),
				progress DOUBLE PRECISION NOT NULL DEFAULT 0,
				metadata JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_journey_events_entity_id ON journey_events(entity_id);
			CREATE INDEX idx_journey_events_created_at ON journey_events(created_at);

			CREATE TABLE webhook_configs (
				key VARCHAR(255) PRIMARY KEY,
				flow_id UUID NOT NULL,
				version_id UUID NOT NULL,
				entry_edge_id VARCHAR(255) NOT NULL,
				secret TEXT,
				payload_schema JSONB,
				active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_webhook_configs_flow_id ON webhook_configs(flow_id);
		`,
		2: `
			ALTER TABLE runs ADD COLUMN completed_at TIMESTAMP WITH TIME ZONE;
		`,
	}
}
