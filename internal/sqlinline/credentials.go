package sqlinline

const QCredentialSelectToken = `--sql 2c41e7a9-5b0d-4f63-9e18-7d3a6c0b94f2
select token
from integration_tokens
where provider = $1::text;
`

// properties are merged so a rotation keeps metadata recorded earlier.
const QCredentialUpsert = `--sql e5a09f3b-81c4-4d27-b6e2-0f9c7a4d1358
insert into integration_tokens (provider, token, properties, created_at, updated_at)
values ($1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb), now(), now())
on conflict (provider) do update set
    token = excluded.token,
    properties = integration_tokens.properties || excluded.properties,
    updated_at = now();
`
